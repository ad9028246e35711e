package schedule

import "strings"

// TagAllDevices is the reserved tag matching every known device.
const TagAllDevices = "all-devices"

// ownerAllSuffix marks tags of the form "<owner>-all", matching every device
// of that owner.
const ownerAllSuffix = "-all"

// Target selects the devices a schedule governs, by explicit MAC address or
// by tag. An empty target matches nothing.
type Target struct {
	Devices []string
	Tags    []string
}

// DeviceRef is the evaluator's view of a device: its MAC, the owner it is
// assigned to, and any tags it carries.
type DeviceRef struct {
	MAC      string
	OwnerKey string
	Tags     []string
}

// Empty reports whether the target selects no devices.
func (t Target) Empty() bool {
	return len(t.Devices) == 0 && len(t.Tags) == 0
}

// Clone returns a copy sharing no slices with the receiver.
func (t Target) Clone() Target {
	return Target{
		Devices: append([]string(nil), t.Devices...),
		Tags:    append([]string(nil), t.Tags...),
	}
}

// Normalize lower-cases and trims every MAC and tag in place.
func (t *Target) Normalize() {
	for i, mac := range t.Devices {
		t.Devices[i] = NormalizeKey(mac)
	}
	for i, tag := range t.Tags {
		t.Tags[i] = NormalizeKey(tag)
	}
}

// Matches reports whether device falls under this target. A device matches
// when its MAC is listed, when it carries one of the target's tags, or when
// the target names the device's owner (either by bare owner key or the
// "<owner>-all" form). The reserved all-devices tag matches everything.
func (t Target) Matches(device DeviceRef) bool {
	mac := NormalizeKey(device.MAC)
	for _, candidate := range t.Devices {
		if NormalizeKey(candidate) == mac {
			return true
		}
	}

	owner := NormalizeKey(device.OwnerKey)
	deviceTags := make(map[string]struct{}, len(device.Tags))
	for _, tag := range device.Tags {
		deviceTags[NormalizeKey(tag)] = struct{}{}
	}

	for _, tag := range t.Tags {
		tag = NormalizeKey(tag)
		if tag == TagAllDevices {
			return true
		}
		if _, ok := deviceTags[tag]; ok {
			return true
		}
		if owner == "" {
			continue
		}
		if tag == owner {
			return true
		}
		if strings.HasSuffix(tag, ownerAllSuffix) && strings.TrimSuffix(tag, ownerAllSuffix) == owner {
			return true
		}
	}
	return false
}

// NormalizeKey canonicalizes MAC addresses, owner keys, and tags for
// comparison.
func NormalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

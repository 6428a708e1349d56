package hotkey

import (
	"fmt"
	"strings"
)

// Manager defines the interface for global hotkey management
type Manager interface {
	Register(accel string, callback func(pressed bool)) error
	Unregister(accel string) error
	Close() error
}

// parseAccel splits an accelerator like "Alt+Space" into its modifier
// names (lowercased) and the trailing key.
func parseAccel(accel string) (mods []string, key string, err error) {
	parts := strings.Split(accel, "+")
	key = strings.TrimSpace(parts[len(parts)-1])
	if key == "" {
		return nil, "", fmt.Errorf("invalid accelerator %q", accel)
	}
	for _, part := range parts[:len(parts)-1] {
		mod := strings.ToLower(strings.TrimSpace(part))
		if mod == "" {
			return nil, "", fmt.Errorf("invalid accelerator %q", accel)
		}
		mods = append(mods, mod)
	}
	return mods, key, nil
}

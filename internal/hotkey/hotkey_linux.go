//go:build linux

package hotkey

/*
#cgo pkg-config: x11
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <stdlib.h>

static Display* displayPtr = NULL;

static int ensureDisplay() {
    if (displayPtr == NULL) {
        displayPtr = XOpenDisplay(NULL);
    }
    return displayPtr != NULL;
}

static int keycodeForName(const char* name) {
    if (!ensureDisplay()) return 0;

    KeySym sym = XStringToKeysym(name);
    if (sym == NoSymbol) return 0;
    return XKeysymToKeycode(displayPtr, sym);
}

static int grabKey(int keycode, unsigned int modifiers) {
    if (!ensureDisplay()) return 0;

    Window root = DefaultRootWindow(displayPtr);
    XGrabKey(displayPtr, keycode, modifiers, root, False, GrabModeAsync, GrabModeAsync);
    XSelectInput(displayPtr, root, KeyPressMask | KeyReleaseMask);
    XSync(displayPtr, False);

    return 1;
}

static void ungrabKey(int keycode, unsigned int modifiers) {
    if (displayPtr == NULL) return;

    Window root = DefaultRootWindow(displayPtr);
    XUngrabKey(displayPtr, keycode, modifiers, root);
    XSync(displayPtr, False);
}

static int checkEvent(int* keycode, int* pressed) {
    if (displayPtr == NULL) return 0;

    XEvent event;
    if (XPending(displayPtr) > 0) {
        XNextEvent(displayPtr, &event);
        if (event.type == KeyPress || event.type == KeyRelease) {
            *keycode = event.xkey.keycode;
            *pressed = (event.type == KeyPress) ? 1 : 0;
            return 1;
        }
    }
    return 0;
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"
)

var x11ModMasks = map[string]uint{
	"shift":   1,  // ShiftMask
	"ctrl":    4,  // ControlMask
	"control": 4,
	"alt":     8,  // Mod1Mask
	"super":   64, // Mod4Mask
	"meta":    64,
}

type binding struct {
	keycode   int
	modifiers uint
	callback  func(bool)
}

type linuxManager struct {
	mu       sync.Mutex
	bindings map[string]binding
	stop     chan struct{}
}

// New creates a new Linux hotkey manager using X11
func New() (Manager, error) {
	mgr := &linuxManager{
		bindings: make(map[string]binding),
		stop:     make(chan struct{}),
	}

	go mgr.eventLoop()

	return mgr, nil
}

func (m *linuxManager) Register(accel string, callback func(pressed bool)) error {
	mods, key, err := parseAccel(accel)
	if err != nil {
		return err
	}

	cname := C.CString(x11KeyName(key))
	keycode := int(C.keycodeForName(cname))
	C.free(unsafe.Pointer(cname))
	if keycode == 0 {
		return fmt.Errorf("unknown key %q", key)
	}

	var modifiers uint
	for _, mod := range mods {
		mask, ok := x11ModMasks[mod]
		if !ok {
			return fmt.Errorf("unknown modifier %q", mod)
		}
		modifiers |= mask
	}

	if C.grabKey(C.int(keycode), C.uint(modifiers)) == 0 {
		return fmt.Errorf("failed to grab %s", accel)
	}

	m.mu.Lock()
	m.bindings[strings.ToLower(accel)] = binding{
		keycode:   keycode,
		modifiers: modifiers,
		callback:  callback,
	}
	m.mu.Unlock()

	return nil
}

func (m *linuxManager) Unregister(accel string) error {
	name := strings.ToLower(accel)

	m.mu.Lock()
	b, ok := m.bindings[name]
	if ok {
		delete(m.bindings, name)
	}
	m.mu.Unlock()

	if ok {
		C.ungrabKey(C.int(b.keycode), C.uint(b.modifiers))
	}
	return nil
}

func (m *linuxManager) Close() error {
	close(m.stop)
	return nil
}

func (m *linuxManager) eventLoop() {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			var keycode, pressed C.int
			for C.checkEvent(&keycode, &pressed) != 0 {
				m.dispatch(int(keycode), pressed == 1)
			}
		}
	}
}

func (m *linuxManager) dispatch(keycode int, pressed bool) {
	m.mu.Lock()
	var cb func(bool)
	for _, b := range m.bindings {
		if b.keycode == keycode {
			cb = b.callback
			break
		}
	}
	m.mu.Unlock()

	if cb != nil {
		cb(pressed)
	}
}

// x11KeyName maps accelerator key names onto X keysym names.
func x11KeyName(key string) string {
	switch strings.ToLower(key) {
	case "space":
		return "space"
	case "return", "enter":
		return "Return"
	case "tab":
		return "Tab"
	case "escape", "esc":
		return "Escape"
	}
	if len(key) == 1 {
		return strings.ToLower(key)
	}
	// F1..F12 and other keysym names pass through unchanged
	return key
}

// Command keygen bootstraps the on-disk key store: it starts a Manager
// against KEY_STORE_DIR, waits for the initial async load to produce an
// active signing key, and reports the result. Operators run this once
// before first deploy so the store directory exists with its first key
// pair rather than relying on the server's first request to trigger it.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/lavente-auth/authcore/internal/keymanager"
)

func main() {
	dir := os.Getenv("KEY_STORE_DIR")
	if dir == "" {
		dir = "./keys"
	}

	mgr, err := keymanager.New(keymanager.Config{Dir: dir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-mgr.ActiveKeyAvailable():
	case <-time.After(30 * time.Second):
		fmt.Fprintln(os.Stderr, "keygen: timed out waiting for an active signing key")
		os.Exit(1)
	}

	kp, err := mgr.GetActiveKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("active signing key ready in %s\n", dir)
	fmt.Printf("key_id=%s algorithm=%s\n", kp.KeyID, kp.Algorithm)
}

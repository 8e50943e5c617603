// Package id issues order handles.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// At returns a ULID stamped with the simulation time t rather than the wall
// clock, so handles sort in bar order. Handles issued for the same bar stay
// strictly increasing. A zero t falls back to the current time.
func At(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}

	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Monotonic entropy overflow or a time before the ULID epoch.
		panic(err)
	}
	return id.String()
}

// Time extracts the timestamp encoded in a handle.
func Time(handle string) (time.Time, error) {
	u, err := ulid.ParseStrict(handle)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}

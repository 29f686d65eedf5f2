package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/gasp-push-gateway/internal/registry"
	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := registry.New()

	t.Run("Register and lookup", func(t *testing.T) {
		reg.Register("device-a", "endpoint-1")

		endpoint, ok := reg.EndpointFor("device-a")
		require.True(t, ok)
		assert.Equal(t, push.EndpointIdentity("endpoint-1"), endpoint)
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("Re-register swaps the endpoint", func(t *testing.T) {
		reg.Register("device-a", "endpoint-2")

		endpoint, ok := reg.EndpointFor("device-a")
		require.True(t, ok)
		assert.Equal(t, push.EndpointIdentity("endpoint-2"), endpoint)
		assert.Equal(t, 1, reg.Len(), "re-registration must not grow the registry")
	})

	t.Run("Unregister removes the mapping", func(t *testing.T) {
		reg.Unregister("device-a")

		_, ok := reg.EndpointFor("device-a")
		assert.False(t, ok)
		assert.Equal(t, 0, reg.Len())
	})

	t.Run("Unregister unknown device is a no-op", func(t *testing.T) {
		reg.Unregister("never-registered")
		assert.Equal(t, 0, reg.Len())
	})
}

func TestRegistryRemoveIf(t *testing.T) {
	reg := registry.New()
	reg.Register("device-a", "endpoint-1")

	t.Run("Mismatched endpoint keeps the mapping", func(t *testing.T) {
		// The device re-registered between snapshot and prune.
		removed := reg.RemoveIf("device-a", "endpoint-stale")
		assert.False(t, removed)
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("Matching endpoint removes the mapping", func(t *testing.T) {
		removed := reg.RemoveIf("device-a", "endpoint-1")
		assert.True(t, removed)
		assert.Equal(t, 0, reg.Len())
	})
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	reg := registry.New()
	reg.Register("device-a", "endpoint-1")

	entries := reg.Entries()
	endpoints := reg.Endpoints()

	reg.Register("device-b", "endpoint-2")
	reg.Unregister("device-a")

	// Snapshots taken before the mutations are unaffected by them.
	require.Len(t, entries, 1)
	assert.Equal(t, push.DeviceIdentity("device-a"), entries[0].Device)
	require.Len(t, endpoints, 1)
	assert.Equal(t, push.EndpointIdentity("endpoint-1"), endpoints[0])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := registry.New()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			device := push.DeviceIdentity(fmt.Sprintf("device-%d", n))
			endpoint := push.EndpointIdentity(fmt.Sprintf("endpoint-%d", n))
			for j := 0; j < 100; j++ {
				reg.Register(device, endpoint)
				reg.EndpointFor(device)
				reg.Entries()
				reg.Unregister(device)
			}
			reg.Register(device, endpoint)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, reg.Len())
}

func TestSet(t *testing.T) {
	set := registry.NewSet([]push.Platform{push.PlatformAPNS, push.PlatformGCM})

	t.Run("For returns a registry per configured platform", func(t *testing.T) {
		apns, ok := set.For(push.PlatformAPNS)
		require.True(t, ok)
		gcm, ok := set.For(push.PlatformGCM)
		require.True(t, ok)
		assert.NotSame(t, apns, gcm, "platforms must not share a registry")
	})

	t.Run("Unknown platform has no registry", func(t *testing.T) {
		_, ok := set.For(push.PlatformADM)
		assert.False(t, ok)
	})

	t.Run("Platforms preserves the fixed order", func(t *testing.T) {
		assert.Equal(t, []push.Platform{push.PlatformAPNS, push.PlatformGCM}, set.Platforms())
	})
}

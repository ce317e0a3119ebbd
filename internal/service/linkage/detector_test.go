package linkage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDeviceLinker struct {
	usersByDevice map[string][]string
	devicesByUser map[string][]string
}

func (s *stubDeviceLinker) UsersForDevice(hash string) []string  { return s.usersByDevice[hash] }
func (s *stubDeviceLinker) DevicesForUser(userID string) []string { return s.devicesByUser[userID] }

type stubIPLinker struct {
	usersByIP map[string][]string
	ipsByUser map[string][]string
}

func (s *stubIPLinker) UsersForIP(ip string) []string     { return s.usersByIP[ip] }
func (s *stubIPLinker) IPsForUser(userID string) []string { return s.ipsByUser[userID] }

func emptyLinkers() (*stubDeviceLinker, *stubIPLinker) {
	return &stubDeviceLinker{
			usersByDevice: map[string][]string{},
			devicesByUser: map[string][]string{},
		}, &stubIPLinker{
			usersByIP: map[string][]string{},
			ipsByUser: map[string][]string{},
		}
}

func TestDetector_NoLinks(t *testing.T) {
	devices, ips := emptyLinkers()
	d := NewDetector(devices, ips, zap.NewNop())

	r, err := d.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, r.IsMultiAccount)
	assert.Equal(t, 0.0, r.Confidence)
	assert.Empty(t, r.LinkedAccounts)
}

func TestDetector_DeviceLink(t *testing.T) {
	devices, ips := emptyLinkers()
	devices.devicesByUser["user-1"] = []string{"hash-a"}
	devices.usersByDevice["hash-a"] = []string{"user-1", "user-2"}
	d := NewDetector(devices, ips, zap.NewNop())

	r, err := d.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, r.IsMultiAccount)
	require.Len(t, r.LinkedAccounts, 1)
	assert.Equal(t, "user-2", r.LinkedAccounts[0].UserID)
	assert.InDelta(t, 0.9, r.LinkedAccounts[0].Confidence, 1e-9)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
}

func TestDetector_IPOnlyLink(t *testing.T) {
	devices, ips := emptyLinkers()
	ips.ipsByUser["user-1"] = []string{"203.0.113.10"}
	ips.usersByIP["203.0.113.10"] = []string{"user-1", "user-3"}
	d := NewDetector(devices, ips, zap.NewNop())

	r, err := d.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, r.LinkedAccounts, 1)
	assert.InDelta(t, 0.6, r.LinkedAccounts[0].Confidence, 1e-9, "ip-only links are weaker")
	assert.InDelta(t, 0.6, r.Confidence, 1e-9)
}

func TestDetector_BothLinkTypesBoostConfidence(t *testing.T) {
	devices, ips := emptyLinkers()
	devices.devicesByUser["user-1"] = []string{"hash-a"}
	devices.usersByDevice["hash-a"] = []string{"user-1", "user-2"}
	ips.ipsByUser["user-1"] = []string{"203.0.113.10"}
	ips.usersByIP["203.0.113.10"] = []string{"user-1", "user-2"}
	d := NewDetector(devices, ips, zap.NewNop())

	r, err := d.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, r.LinkedAccounts, 1)
	assert.ElementsMatch(t, []string{"device", "ip"}, r.LinkedAccounts[0].LinkTypes)
	// Per-link confidence 0.9 (device dominates) plus 0.1 for the second
	// distinct link type.
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
	require.NotEmpty(t, r.Signals)
	assert.Equal(t, "high", string(r.Signals[0].Severity))
}

func TestDetector_LinkedAccountsSorted(t *testing.T) {
	devices, ips := emptyLinkers()
	devices.devicesByUser["user-1"] = []string{"hash-a"}
	devices.usersByDevice["hash-a"] = []string{"user-1", "user-9", "user-2", "user-5"}
	d := NewDetector(devices, ips, zap.NewNop())

	r, err := d.Detect(context.Background(), "user-1")
	require.NoError(t, err)
	ids := make([]string, len(r.LinkedAccounts))
	for i, l := range r.LinkedAccounts {
		ids[i] = l.UserID
	}
	assert.Equal(t, []string{"user-2", "user-5", "user-9"}, ids)
}

package linkage

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
)

// Link confidence contributed by each association type
const (
	deviceLinkConfidence = 0.9
	ipLinkConfidence     = 0.6
)

// DeviceLinker exposes the device↔user associations built by the device
// analyzer.
type DeviceLinker interface {
	UsersForDevice(hash string) []string
	DevicesForUser(userID string) []string
}

// IPLinker exposes the ip↔user associations built by the IP analyzer.
type IPLinker interface {
	UsersForIP(ip string) []string
	IPsForUser(userID string) []string
}

// LinkedAccount describes one other user tied to the subject
type LinkedAccount struct {
	UserID     string   `json:"user_id"`
	LinkTypes  []string `json:"link_types"`
	Confidence float64  `json:"confidence"`
}

// Result is the outcome of one multi-account scan
type Result struct {
	IsMultiAccount bool               `json:"is_multi_account"`
	Confidence     float64            `json:"confidence"`
	LinkedAccounts []LinkedAccount    `json:"linked_accounts,omitempty"`
	Signals        []fraud.RiskSignal `json:"signals,omitempty"`
}

// Detector cross-references the device and IP association maps to find
// accounts likely controlled by the same actor.
type Detector struct {
	devices DeviceLinker
	ips     IPLinker
	logger  *zap.Logger
}

// NewDetector creates a multi-account detector over the given linkers
func NewDetector(devices DeviceLinker, ips IPLinker, logger *zap.Logger) *Detector {
	return &Detector{
		devices: devices,
		ips:     ips,
		logger:  logger,
	}
}

// Detect scans for other users sharing a device or IP with the subject.
// Sharing a device contributes 0.9 per link, sharing only an IP 0.6;
// overall confidence is the per-link mean plus 0.1 per additional distinct
// link type, clamped to 1.
func (d *Detector) Detect(ctx context.Context, userID string) (*Result, error) {
	byUser := make(map[string]map[string]bool) // linked user -> link types

	for _, hash := range d.devices.DevicesForUser(userID) {
		for _, other := range d.devices.UsersForDevice(hash) {
			if other == userID {
				continue
			}
			if byUser[other] == nil {
				byUser[other] = make(map[string]bool)
			}
			byUser[other]["device"] = true
		}
	}

	for _, ip := range d.ips.IPsForUser(userID) {
		for _, other := range d.ips.UsersForIP(ip) {
			if other == userID {
				continue
			}
			if byUser[other] == nil {
				byUser[other] = make(map[string]bool)
			}
			byUser[other]["ip"] = true
		}
	}

	result := &Result{}
	if len(byUser) == 0 {
		return result, nil
	}

	linkTypesSeen := make(map[string]bool)
	sum := 0.0
	for other, types := range byUser {
		linked := LinkedAccount{UserID: other}
		if types["device"] {
			linked.Confidence = deviceLinkConfidence
			linked.LinkTypes = append(linked.LinkTypes, "device")
			linkTypesSeen["device"] = true
		}
		if types["ip"] {
			if linked.Confidence == 0 {
				linked.Confidence = ipLinkConfidence
			}
			linked.LinkTypes = append(linked.LinkTypes, "ip")
			linkTypesSeen["ip"] = true
		}
		sum += linked.Confidence
		result.LinkedAccounts = append(result.LinkedAccounts, linked)
	}
	sort.Slice(result.LinkedAccounts, func(i, j int) bool {
		return result.LinkedAccounts[i].UserID < result.LinkedAccounts[j].UserID
	})

	confidence := sum/float64(len(byUser)) + 0.1*float64(len(linkTypesSeen)-1)
	if confidence > 1 {
		confidence = 1
	}
	result.Confidence = confidence
	result.IsMultiAccount = true

	severity := fraud.SeverityMedium
	if confidence >= 0.8 {
		severity = fraud.SeverityHigh
	}
	linkedIDs := make([]string, len(result.LinkedAccounts))
	for i, l := range result.LinkedAccounts {
		linkedIDs[i] = l.UserID
	}
	result.Signals = append(result.Signals, fraud.NewSignal(
		fraud.SignalMultiAccount,
		severity,
		fmt.Sprintf("%d linked account(s) detected", len(result.LinkedAccounts)),
		confidence,
	).WithEvidence(map[string]interface{}{
		"linked_users": linkedIDs,
		"link_types":   len(linkTypesSeen),
	}))

	d.logger.Debug("multi-account linkage found",
		zap.String("user_id", userID),
		zap.Int("linked", len(result.LinkedAccounts)),
		zap.Float64("confidence", confidence))

	return result, nil
}

package device

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
)

// Known emulator markers in user agents and WebGL renderers
var emulatorUASubstrings = []string{
	"android sdk built for x86",
	"emulator",
	"genymotion",
	"bluestacks",
	"nox",
	"memu",
}

var emulatorRenderers = []string{
	"swiftshader",
	"llvmpipe",
}

// Known virtual machine markers in WebGL vendor/renderer strings
var vmMarkers = []string{
	"vmware",
	"virtualbox",
	"parallels",
	"qemu",
	"virgl",
	"hyper-v",
}

// Known automation framework markers in user agents
var botUASubstrings = []string{
	"headlesschrome",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"crawler",
	"spider",
	"bot",
}

// Result is the outcome of one device fingerprint analysis
type Result struct {
	DeviceHash     string             `json:"device_hash"`
	IsNewDevice    bool               `json:"is_new_device"`
	IsSharedDevice bool               `json:"is_shared_device"`
	IsEmulator     bool               `json:"is_emulator"`
	IsVM           bool               `json:"is_vm"`
	IsBot          bool               `json:"is_bot"`
	IsBlocked      bool               `json:"is_blocked"`
	TrustScore     float64            `json:"trust_score"`
	RiskScore      float64            `json:"risk_score"`
	MissingSignals []string           `json:"missing_signals,omitempty"`
	SharedWith     []string           `json:"shared_with,omitempty"`
	Signals        []fraud.RiskSignal `json:"signals,omitempty"`
}

// Analyzer canonicalizes device fingerprints into stable identities and
// maintains the device↔user association maps. Associations are append-only:
// created on first sighting, never deleted by the engine.
type Analyzer struct {
	cfg    config.DeviceConfig
	logger *zap.Logger

	mu            sync.RWMutex
	devicesByUser map[string][]string         // userID -> ordered device hashes
	usersByDevice map[string]map[string]bool  // deviceHash -> user set
}

// NewAnalyzer creates a device analyzer with the given policy
func NewAnalyzer(cfg config.DeviceConfig, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:           cfg,
		logger:        logger,
		devicesByUser: make(map[string][]string),
		usersByDevice: make(map[string]map[string]bool),
	}
}

// Analyze classifies the fingerprint, scores device trust, and records the
// device↔user association.
func (a *Analyzer) Analyze(ctx context.Context, userID string, fp *fraud.DeviceFingerprint) (*Result, error) {
	if fp == nil {
		return nil, errors.NewDeviceAnalysisError("fingerprint is required")
	}

	hash := fp.Hash()

	a.mu.Lock()
	isNew := !a.userHasDeviceLocked(userID, hash)
	otherUsers := a.otherUsersLocked(userID, hash)
	a.associateLocked(userID, hash)
	deviceCount := len(a.devicesByUser[userID])
	a.mu.Unlock()

	result := &Result{
		DeviceHash:     hash,
		IsNewDevice:    isNew,
		IsSharedDevice: len(otherUsers) > 0,
		SharedWith:     otherUsers,
		TrustScore:     1.0,
	}

	a.classify(fp, result)
	a.scoreTrust(fp, result)
	a.buildSignals(result)

	if deviceCount > a.cfg.MaxDevicesPerUser {
		a.logger.Warn("user exceeds device limit",
			zap.String("user_id", userID),
			zap.Int("devices", deviceCount),
			zap.Int("max", a.cfg.MaxDevicesPerUser))
		result.Signals = append(result.Signals, fraud.NewSignal(
			fraud.SignalDeviceAnomaly,
			fraud.SeverityMedium,
			fmt.Sprintf("user has %d devices (max %d)", deviceCount, a.cfg.MaxDevicesPerUser),
			0.7,
		).WithEvidence(map[string]interface{}{
			"device_count": deviceCount,
			"max_devices":  a.cfg.MaxDevicesPerUser,
		}))
	}

	return result, nil
}

func (a *Analyzer) classify(fp *fraud.DeviceFingerprint, r *Result) {
	ua := strings.ToLower(fp.UserAgent)
	renderer := strings.ToLower(fp.WebGLRenderer)
	vendor := strings.ToLower(fp.WebGLVendor)

	for _, marker := range emulatorUASubstrings {
		if strings.Contains(ua, marker) {
			r.IsEmulator = true
			break
		}
	}
	if !r.IsEmulator {
		for _, marker := range emulatorRenderers {
			if strings.Contains(renderer, marker) {
				r.IsEmulator = true
				break
			}
		}
	}

	for _, marker := range vmMarkers {
		if strings.Contains(renderer, marker) || strings.Contains(vendor, marker) {
			r.IsVM = true
			break
		}
	}

	if fp.Webdriver || fp.Automation || fp.Headless {
		r.IsBot = true
	}
	if !r.IsBot {
		for _, marker := range botUASubstrings {
			if strings.Contains(ua, marker) {
				r.IsBot = true
				break
			}
		}
	}
	// Zero plugins with cookies disabled is a strong automation tell on
	// desktop browsers.
	if !r.IsBot && len(fp.Plugins) == 0 && fp.CookiesEnabled != nil && !*fp.CookiesEnabled {
		r.IsBot = true
	}
}

func (a *Analyzer) scoreTrust(fp *fraud.DeviceFingerprint, r *Result) {
	trust := 1.0

	if r.IsNewDevice {
		trust -= 0.2
	}
	if r.IsSharedDevice {
		trust -= 0.3
	}
	if r.IsEmulator {
		trust -= 0.5
	}
	if r.IsVM {
		trust -= 0.3
	}
	for _, signal := range a.cfg.RequiredSignals {
		if !fp.HasSignal(signal) {
			r.MissingSignals = append(r.MissingSignals, signal)
			trust -= 0.1
		}
	}
	if trust < 0 {
		trust = 0
	}
	// A confirmed bot gets no trust at all.
	if r.IsBot {
		trust = 0
	}
	// Policy-blocked device classes are hard-rejected regardless of the
	// remaining trust arithmetic.
	if (r.IsEmulator && a.cfg.BlockKnownEmulators) || (r.IsVM && a.cfg.BlockKnownVMs) {
		r.IsBlocked = true
		trust = 0
	}

	r.TrustScore = trust
	r.RiskScore = 1 - trust
	if r.RiskScore < 0 {
		r.RiskScore = 0
	}
}

func (a *Analyzer) buildSignals(r *Result) {
	if r.IsBot {
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalBotDetected,
			fraud.SeverityHigh,
			"automation or headless browser detected",
			0.95,
		).WithEvidence(map[string]interface{}{"device_hash": r.DeviceHash}))
	}
	if r.IsEmulator {
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalEmulatorDetected,
			fraud.SeverityHigh,
			"device appears to be an emulator",
			0.85,
		).WithEvidence(map[string]interface{}{"device_hash": r.DeviceHash}))
	}
	if r.IsVM {
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalVMDetected,
			fraud.SeverityMedium,
			"device appears to be a virtual machine",
			0.7,
		).WithEvidence(map[string]interface{}{"device_hash": r.DeviceHash}))
	}
	if r.IsSharedDevice {
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalSharedDevice,
			fraud.SeverityMedium,
			fmt.Sprintf("device shared with %d other user(s)", len(r.SharedWith)),
			0.8,
		).WithEvidence(map[string]interface{}{
			"device_hash": r.DeviceHash,
			"shared_with": r.SharedWith,
		}))
	}
	if r.IsNewDevice && !r.IsBot {
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalNewDevice,
			fraud.SeverityLow,
			"first sighting of this device for the user",
			0.5,
		).WithEvidence(map[string]interface{}{"device_hash": r.DeviceHash}))
	}
}

func (a *Analyzer) userHasDeviceLocked(userID, hash string) bool {
	for _, h := range a.devicesByUser[userID] {
		if h == hash {
			return true
		}
	}
	return false
}

func (a *Analyzer) otherUsersLocked(userID, hash string) []string {
	var others []string
	for uid := range a.usersByDevice[hash] {
		if uid != userID {
			others = append(others, uid)
		}
	}
	return others
}

func (a *Analyzer) associateLocked(userID, hash string) {
	if !a.userHasDeviceLocked(userID, hash) {
		a.devicesByUser[userID] = append(a.devicesByUser[userID], hash)
	}
	users, ok := a.usersByDevice[hash]
	if !ok {
		users = make(map[string]bool)
		a.usersByDevice[hash] = users
	}
	users[userID] = true
}

// UsersForDevice returns all users seen on a device hash. Used by the
// multi-account detector.
func (a *Analyzer) UsersForDevice(hash string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	users := make([]string, 0, len(a.usersByDevice[hash]))
	for uid := range a.usersByDevice[hash] {
		users = append(users, uid)
	}
	return users
}

// DevicesForUser returns the device hashes associated with a user
func (a *Analyzer) DevicesForUser(userID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	devices := make([]string, len(a.devicesByUser[userID]))
	copy(devices, a.devicesByUser[userID])
	return devices
}

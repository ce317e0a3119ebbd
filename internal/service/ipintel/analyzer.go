package ipintel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
)

// ConnectionType classifies the network a connection originates from
type ConnectionType string

const (
	ConnectionResidential ConnectionType = "residential"
	ConnectionVPN         ConnectionType = "vpn"
	ConnectionProxy       ConnectionType = "proxy"
	ConnectionTor         ConnectionType = "tor"
	ConnectionDatacenter  ConnectionType = "datacenter"
)

// ExternalData carries already-resolved classification from the external
// GeoIP/VPN/Tor provider. When absent the analyzer falls back to its local
// heuristics.
type ExternalData struct {
	IsVPN        bool               `json:"is_vpn"`
	IsProxy      bool               `json:"is_proxy"`
	IsTor        bool               `json:"is_tor"`
	IsDatacenter bool               `json:"is_datacenter"`
	ASN          string             `json:"asn,omitempty"`
	Location     *fraud.GeoLocation `json:"location,omitempty"`
}

// GeoVelocityResult is the outcome of the impossible-travel check
type GeoVelocityResult struct {
	Checked      bool          `json:"checked"`
	IsPossible   bool          `json:"is_possible"`
	DistanceKm   float64       `json:"distance_km"`
	ElapsedTime  time.Duration `json:"elapsed_time"`
	RequiredTime time.Duration `json:"required_time"`
	FromCountry  string        `json:"from_country,omitempty"`
	ToCountry    string        `json:"to_country,omitempty"`
}

// Result is the outcome of one IP analysis
type Result struct {
	IP              string             `json:"ip"`
	ConnectionType  ConnectionType     `json:"connection_type"`
	ReputationScore float64            `json:"reputation_score"`
	RiskScore       float64            `json:"risk_score"`
	IsBlocked       bool               `json:"is_blocked"`
	Location        *fraud.GeoLocation `json:"location,omitempty"`
	GeoVelocity     GeoVelocityResult  `json:"geo_velocity"`
	Signals         []fraud.RiskSignal `json:"signals,omitempty"`
}

// A small static seed of Tor exit nodes for the local fallback. Real
// deployments feed fresh exit lists through ExternalData.
var knownTorExits = map[string]bool{
	"185.220.101.1":  true,
	"185.220.102.8":  true,
	"199.87.154.255": true,
	"204.13.164.118": true,
}

// Datacenter ASNs used by the local fallback classifier
var datacenterASNs = map[string]bool{
	"AS16509": true, // Amazon
	"AS14061": true, // DigitalOcean
	"AS16276": true, // OVH
	"AS24940": true, // Hetzner
	"AS63949": true, // Linode
	"AS20473": true, // Vultr
}

// Analyzer classifies connections, scores IP reputation, and runs the
// geo-velocity check against the user's last known location. It records
// ip→user associations for the multi-account detector.
type Analyzer struct {
	cfg    config.IPConfig
	logger *zap.Logger

	mu            sync.RWMutex
	usersByIP     map[string]map[string]bool
	ipsByUser     map[string]map[string]bool
	lastLocations map[string]fraud.LocationSample
}

// NewAnalyzer creates an IP analyzer with the given policy
func NewAnalyzer(cfg config.IPConfig, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:           cfg,
		logger:        logger,
		usersByIP:     make(map[string]map[string]bool),
		ipsByUser:     make(map[string]map[string]bool),
		lastLocations: make(map[string]fraud.LocationSample),
	}
}

// Analyze classifies the connection and computes reputation and geo-velocity.
// external may be nil, in which case local heuristics are used.
func (a *Analyzer) Analyze(ctx context.Context, userID, ip string, external *ExternalData) (*Result, error) {
	if net.ParseIP(ip) == nil {
		return nil, errors.NewIPAnalysisError(fmt.Sprintf("invalid ip address %q", ip))
	}

	result := &Result{
		IP:              ip,
		ConnectionType:  ConnectionResidential,
		ReputationScore: 100,
	}

	if external != nil && external.Location != nil {
		result.Location = external.Location
	}

	a.classify(ip, external, result)
	a.scoreReputation(result)

	if result.Location != nil {
		a.checkGeoVelocity(userID, *result.Location, result)
	}

	a.record(userID, ip, result.Location)

	return result, nil
}

func (a *Analyzer) classify(ip string, external *ExternalData, r *Result) {
	if external != nil {
		switch {
		case external.IsTor:
			r.ConnectionType = ConnectionTor
			return
		case external.IsProxy:
			r.ConnectionType = ConnectionProxy
			return
		case external.IsVPN:
			r.ConnectionType = ConnectionVPN
			return
		case external.IsDatacenter:
			r.ConnectionType = ConnectionDatacenter
			return
		}
		// Provider supplied no classification; fall through to the local
		// heuristics using whatever ASN it did resolve.
		if external.ASN != "" && datacenterASNs[external.ASN] {
			r.ConnectionType = ConnectionDatacenter
			return
		}
	}

	if knownTorExits[ip] {
		r.ConnectionType = ConnectionTor
	}
}

func (a *Analyzer) scoreReputation(r *Result) {
	switch r.ConnectionType {
	case ConnectionTor:
		r.ReputationScore -= 60
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalTorDetected,
			fraud.SeverityHigh,
			"connection originates from a Tor exit node",
			0.95,
		).WithEvidence(map[string]interface{}{"ip": r.IP}))
	case ConnectionProxy:
		r.ReputationScore -= 30
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalProxyDetected,
			fraud.SeverityMedium,
			"connection originates from an open proxy",
			0.8,
		).WithEvidence(map[string]interface{}{"ip": r.IP}))
	case ConnectionVPN:
		r.ReputationScore -= 25
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalVPNDetected,
			fraud.SeverityMedium,
			"connection originates from a VPN",
			0.75,
		).WithEvidence(map[string]interface{}{"ip": r.IP}))
	case ConnectionDatacenter:
		r.ReputationScore -= 20
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalDatacenterIP,
			fraud.SeverityLow,
			"connection originates from a datacenter range",
			0.6,
		).WithEvidence(map[string]interface{}{"ip": r.IP}))
	}

	if (r.ConnectionType == ConnectionTor && a.cfg.BlockTor) ||
		(r.ConnectionType == ConnectionVPN && a.cfg.BlockVPN) {
		r.IsBlocked = true
		r.ReputationScore = 0
	}

	if r.Location != nil {
		a.applyCountryPolicy(r)
	}

	if r.ReputationScore < 0 {
		r.ReputationScore = 0
	}
	r.RiskScore = clamp((100-r.ReputationScore)/100, 0, 1)
}

func (a *Analyzer) applyCountryPolicy(r *Result) {
	for _, blocked := range a.cfg.BlockedCountries {
		if r.Location.Country == blocked {
			r.ReputationScore = 0
			r.IsBlocked = true
			r.Signals = append(r.Signals, fraud.NewSignal(
				fraud.SignalBlockedCountry,
				fraud.SeverityHigh,
				fmt.Sprintf("connection from blocked country %s", blocked),
				1.0,
			).WithEvidence(map[string]interface{}{
				"ip":      r.IP,
				"country": blocked,
			}))
			return
		}
	}
}

// checkGeoVelocity flags travel between the last known location and the
// current one that would require faster-than-feasible movement. Travel is
// impossible when the elapsed time is under 80% of the time required at the
// configured maximum speed.
func (a *Analyzer) checkGeoVelocity(userID string, loc fraud.GeoLocation, r *Result) {
	a.mu.RLock()
	last, ok := a.lastLocations[userID]
	a.mu.RUnlock()
	if !ok {
		return
	}

	distance := fraud.HaversineKm(last.Location, loc)
	elapsed := time.Since(last.ObservedAt)
	maxSpeed := a.cfg.MaxTravelSpeedKmh
	if maxSpeed <= 0 {
		maxSpeed = 900
	}
	required := time.Duration(distance / maxSpeed * float64(time.Hour))

	gv := GeoVelocityResult{
		Checked:      true,
		IsPossible:   true,
		DistanceKm:   distance,
		ElapsedTime:  elapsed,
		RequiredTime: required,
		FromCountry:  last.Location.Country,
		ToCountry:    loc.Country,
	}

	if required > 0 && float64(elapsed) < 0.8*float64(required) {
		gv.IsPossible = false
		// Contribution grows toward +0.5 the more infeasible the travel is.
		ratio := float64(elapsed) / float64(required)
		contribution := clamp(0.5*(1-ratio), 0, 0.5)
		r.RiskScore = clamp(r.RiskScore+contribution, 0, 1)
		r.Signals = append(r.Signals, fraud.NewSignal(
			fraud.SignalImpossibleTravel,
			fraud.SeverityHigh,
			fmt.Sprintf("impossible travel: %.0f km in %s", distance, elapsed.Round(time.Minute)),
			0.9,
		).WithEvidence(map[string]interface{}{
			"distance_km":   distance,
			"elapsed":       elapsed.String(),
			"required":      required.String(),
			"from_country":  gv.FromCountry,
			"to_country":    gv.ToCountry,
		}))
		a.logger.Debug("impossible travel detected",
			zap.String("user_id", userID),
			zap.Float64("distance_km", distance),
			zap.Duration("elapsed", elapsed),
			zap.Duration("required", required))
	}

	r.GeoVelocity = gv
}

func (a *Analyzer) record(userID, ip string, loc *fraud.GeoLocation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	users, ok := a.usersByIP[ip]
	if !ok {
		users = make(map[string]bool)
		a.usersByIP[ip] = users
	}
	users[userID] = true

	ips, ok := a.ipsByUser[userID]
	if !ok {
		ips = make(map[string]bool)
		a.ipsByUser[userID] = ips
	}
	ips[ip] = true

	if loc != nil {
		a.lastLocations[userID] = fraud.LocationSample{
			Location:   *loc,
			IP:         ip,
			ObservedAt: time.Now(),
		}
	}
}

// UsersForIP returns all users seen on an IP. Used by the multi-account
// detector.
func (a *Analyzer) UsersForIP(ip string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	users := make([]string, 0, len(a.usersByIP[ip]))
	for uid := range a.usersByIP[ip] {
		users = append(users, uid)
	}
	return users
}

// IPsForUser returns the IPs a user has been seen on
func (a *Analyzer) IPsForUser(userID string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ips := make([]string, 0, len(a.ipsByUser[userID]))
	for ip := range a.ipsByUser[userID] {
		ips = append(ips, ip)
	}
	return ips
}

// CheckTravel evaluates feasibility of travel between two location/time
// samples without mutating analyzer state.
func (a *Analyzer) CheckTravel(from, to fraud.GeoLocation, elapsed time.Duration) GeoVelocityResult {
	distance := fraud.HaversineKm(from, to)
	maxSpeed := a.cfg.MaxTravelSpeedKmh
	if maxSpeed <= 0 {
		maxSpeed = 900
	}
	required := time.Duration(distance / maxSpeed * float64(time.Hour))
	return GeoVelocityResult{
		Checked:      true,
		IsPossible:   !(required > 0 && float64(elapsed) < 0.8*float64(required)),
		DistanceKm:   distance,
		ElapsedTime:  elapsed,
		RequiredTime: required,
		FromCountry:  from.Country,
		ToCountry:    to.Country,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

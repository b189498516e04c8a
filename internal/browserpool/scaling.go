package browserpool

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// scaleDecision is the outcome of one evaluation of the signal vector.
type scaleDecision string

const (
	decisionScaleUp          scaleDecision = "scale_up"
	decisionScaleDown        scaleDecision = "scale_down"
	decisionMaintain         scaleDecision = "maintain"
	decisionEmergencyScaleUp scaleDecision = "emergency_scale_up"
	decisionForceScaleDown   scaleDecision = "force_scale_down"
)

// signals is the point-in-time view the scaling loop decides from.
type signals struct {
	currentSize int
	utilization float64 // active / currentSize, 0 when currentSize == 0
	queueLength int
	errorRate   float64 // errors / useCount across tracked instances
	trend       float64 // utilization delta vs the previous sample
}

// scalingProfile is one strategy preset. balanced is the default;
// conservative favors headroom over density, aggressive favors
// density and tolerates more queuing before growing.
type scalingProfile struct {
	scaleUpUtilization   float64
	scaleDownUtilization float64
	maxScaleStep         int
	cooldown             time.Duration
}

func profileFor(strategy string) scalingProfile {
	switch strategy {
	case "conservative":
		return scalingProfile{scaleUpUtilization: 0.60, scaleDownUtilization: 0.20, maxScaleStep: 1, cooldown: 45 * time.Second}
	case "aggressive":
		return scalingProfile{scaleUpUtilization: 0.85, scaleDownUtilization: 0.10, maxScaleStep: 4, cooldown: 10 * time.Second}
	default: // balanced
		return scalingProfile{scaleUpUtilization: 0.75, scaleDownUtilization: 0.15, maxScaleStep: 2, cooldown: 20 * time.Second}
	}
}

func (p *Pool) scalingLoop() {
	defer p.loopsWG.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evaluateScaling()
		}
	}
}

func (p *Pool) evaluateScaling() {
	sig := p.computeSignals()
	profile := profileFor(p.cfg.PoolScalingStrategy)
	decision := decide(sig, profile, p.cfg.MinBrowsers, p.cfg.MaxBrowsers)

	if decision == decisionMaintain {
		return
	}

	p.scaleMu.Lock()
	since := time.Since(p.lastScaleAt)
	isEmergency := decision == decisionEmergencyScaleUp || decision == decisionForceScaleDown
	if !isEmergency && since < profile.cooldown {
		p.scaleMu.Unlock()
		return
	}
	p.lastScaleAt = time.Now()
	p.scaleMu.Unlock()

	step := profile.maxScaleStep
	if decision == decisionEmergencyScaleUp {
		step = profile.maxScaleStep * 2
	}

	switch decision {
	case decisionScaleUp, decisionEmergencyScaleUp:
		p.scaleUp(step)
	case decisionScaleDown, decisionForceScaleDown:
		p.scaleDown(step)
	}
}

func (p *Pool) computeSignals() signals {
	p.mu.Lock()
	total := len(p.instances)
	active := 0
	var totalErrors, totalUses int64
	for _, inst := range p.instances {
		if inst.getState() == coretypes.BrowserStateActive {
			active++
		}
		totalErrors += inst.errorCount.Load()
		totalUses += inst.useCount.Load()
	}
	p.mu.Unlock()

	util := 0.0
	if total > 0 {
		util = float64(active) / float64(total)
	}
	errRate := 0.0
	if totalUses > 0 {
		errRate = float64(totalErrors) / float64(totalUses)
	}

	p.scaleMu.Lock()
	prev := 0.0
	if len(p.scalingWindow) > 0 {
		prev = p.scalingWindow[len(p.scalingWindow)-1]
	}
	p.scalingWindow = append(p.scalingWindow, util)
	if len(p.scalingWindow) > 12 {
		p.scalingWindow = p.scalingWindow[len(p.scalingWindow)-12:]
	}
	p.scaleMu.Unlock()

	return signals{
		currentSize: total,
		utilization: util,
		queueLength: p.waiters.len(),
		errorRate:   errRate,
		trend:       util - prev,
	}
}

func decide(sig signals, profile scalingProfile, minSize, maxSize int) scaleDecision {
	if sig.queueLength > sig.currentSize && sig.currentSize < maxSize {
		return decisionEmergencyScaleUp
	}
	if sig.errorRate > 0.5 && sig.currentSize > minSize {
		return decisionForceScaleDown
	}
	if sig.currentSize < maxSize && (sig.utilization >= profile.scaleUpUtilization || sig.queueLength > 0) {
		return decisionScaleUp
	}
	if sig.currentSize > minSize && sig.utilization <= profile.scaleDownUtilization && sig.trend <= 0 {
		return decisionScaleDown
	}
	return decisionMaintain
}

func (p *Pool) scaleUp(step int) {
	room := p.cfg.MaxBrowsers - p.Size()
	if step > room {
		step = room
	}
	for i := 0; i < step; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := p.spawn(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("scale-up spawn failed")
			return
		}
	}
}

func (p *Pool) scaleDown(step int) {
	p.mu.Lock()
	candidates := make([]*instance, 0)
	for _, inst := range p.instances {
		if inst.getState() == coretypes.BrowserStateIdle {
			candidates = append(candidates, inst)
		}
	}
	p.mu.Unlock()

	room := p.Size() - p.cfg.MinBrowsers
	if step > room {
		step = room
	}
	for i := 0; i < step && i < len(candidates); i++ {
		go p.recycle(context.Background(), candidates[i].id)
	}
}

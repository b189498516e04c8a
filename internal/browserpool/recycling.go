package browserpool

import (
	"context"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

const (
	recyclingThreshold  = 70.0 // composite score at/above which an instance recycles
	recyclingCooldown   = 30 * time.Second
	maxRecycleBatchSize = 2
)

// recycleScore computes a 0-100 composite across age, use count, and
// error pressure. Higher means "more in need of recycling". Only idle
// or unhealthy instances are ever scored for proactive recycling;
// active ones are left alone until released.
func recycleScore(info coretypes.BrowserInstanceInfo, maxAge time.Duration, maxUseCount int64) float64 {
	ageScore := 0.0
	if maxAge > 0 {
		ageScore = clamp01(float64(time.Since(info.CreatedAt))/float64(maxAge)) * 40
	}

	useScore := 0.0
	if maxUseCount > 0 {
		useScore = clamp01(float64(info.UseCount)/float64(maxUseCount)) * 30
	}

	healthScore := 0.0
	if info.State == coretypes.BrowserStateUnhealthy {
		healthScore = 30
	} else if info.ErrorCount > 0 {
		healthScore = clamp01(float64(info.ErrorCount)/10) * 20
	}

	return ageScore + useScore + healthScore
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func (p *Pool) recyclingLoop() {
	defer p.loopsWG.Done()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evaluateRecycling()
		}
	}
}

func (p *Pool) evaluateRecycling() {
	p.scaleMu.Lock()
	if time.Since(p.lastRecycleAt) < recyclingCooldown {
		p.scaleMu.Unlock()
		return
	}
	p.lastRecycleAt = time.Now()
	p.scaleMu.Unlock()

	const maxUseCount = 500

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate

	for _, info := range p.Snapshot() {
		if info.State != coretypes.BrowserStateIdle && info.State != coretypes.BrowserStateUnhealthy {
			continue
		}
		score := recycleScore(info, p.cfg.BrowserMaxAge, maxUseCount)
		if score >= recyclingThreshold {
			candidates = append(candidates, candidate{id: info.ID, score: score})
		}
	}

	batch := maxRecycleBatchSize
	if len(candidates) < batch {
		batch = len(candidates)
	}
	for i := 0; i < batch; i++ {
		go p.recycle(context.Background(), candidates[i].id)
	}
}

func (p *Pool) healthCheckLoop() {
	defer p.loopsWG.Done()
	interval := p.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.runHealthChecks()
		}
	}
}

func (p *Pool) runHealthChecks() {
	p.mu.Lock()
	insts := make([]*instance, 0, len(p.instances))
	for _, inst := range p.instances {
		insts = append(insts, inst)
	}
	p.mu.Unlock()

	for _, inst := range insts {
		if inst.getState() != coretypes.BrowserStateIdle {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		healthy := inst.eng.Healthy(ctx)
		cancel()
		if !healthy {
			inst.setState(coretypes.BrowserStateUnhealthy)
			go p.recycle(context.Background(), inst.id)
		}
	}
}

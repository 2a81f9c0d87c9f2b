package engine

import (
	"context"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
	"github.com/cohortgen/cohortgen/internal/rng"
)

// simulate runs one patient's life from birth to death or the run end
// date. Each tick advances every active instance in evaluation order and
// appends emitted events to the record.
//
// Cancellation is cooperative: the context is checked only at tick
// boundaries, so an abandoned simulation never stops mid-state. The
// partial record is returned alongside ctx.Err() for accounting.
func (g *Generator) simulate(ctx context.Context, p *person.Person, src *rng.Source) (*record.Record, error) {
	rec := record.New(p.ID)
	env := &Env{
		Person: p,
		Record: rec,
		Source: src,
		Open:   NewOpenEvents(),
	}

	clock := NewClock(p.BirthDate, g.cfg.Step)
	instances := make([]*Instance, 0, len(g.ordered))
	for i, m := range g.ordered {
		instances = append(instances, NewInstance(m, i, g.cfg.StepBudget, clock.Now()))
	}

	for !clock.Now().After(g.cfg.End) {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		env.Now = clock.Now()

		active := 0
		for _, inst := range instances {
			if inst.Done() {
				continue
			}
			out, err := g.interp.Advance(inst, env)
			if err != nil {
				return rec, err
			}
			if out == Died {
				// Progression halts for every module, not just the one that
				// fired. The open encounter closes at the time of death.
				for _, other := range instances {
					other.Complete()
				}
				if err := g.interp.endEncounter(env); err != nil {
					return rec, err
				}
				return rec, nil
			}
			if !inst.Done() {
				active++
			}
		}
		if active == 0 {
			break
		}
		clock.Tick()
	}
	return rec, nil
}

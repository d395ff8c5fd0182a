// Package simulation drives the trust network market one step at a time.
//
// Each step runs in two passes over the population. In the quote pass every
// trader draws its error term and quotes a buy and a sell price from step t-1
// data; the quotes are inserted into a market.PriceTracker and the clearing
// price is solved. In the update pass every trader moves to its step t state
// at that price. No trader sees another trader's step t state while quoting,
// so the result does not depend on the order in which traders are visited.
//
// Usage:
//
//	d := simulation.NewDriver(simulation.Config{Workers: 4, Logger: logger})
//	for report, err := range d.Evolve(ctx, net, simulation.Steps(0, 100), nil) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(report.T, report.Price)
//	}
package simulation

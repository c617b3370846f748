// Package analysis summarizes finished closed-loop runs.
//
//   - [AnalyzeConvergence]: how quickly and how cleanly the tracking error decays
//   - [SummarizeRefinement]: how often the constrained refinement was used
//   - [PowerSpectrum]: frequency content of a torque trace, for spotting chatter
//   - [ProjectPath] and [PathToASCII]: the end-effector path in a plane
//
// # Settling
//
// A run has settled once the error stays inside 2% of its initial value
// for the rest of the run:
//
//	c, err := analysis.AnalyzeConvergence(res.Times, res.Errors)
//	if err == nil && c.Settled {
//	    fmt.Println(c.SettlingTime)
//	}
package analysis

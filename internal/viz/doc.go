// Package viz is a live terminal view of the closed loop, built on Bubble
// Tea. The arm is drawn on a Braille [Canvas] next to a panel with the
// tracking error, refinement outcomes and the controller gains.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the initial state
//	Tab   - Cycle controller parameters
//	Up/K  - Increase parameter (+5%)
//	Down/J - Decrease parameter (-5%)
//	A/D   - Move target along x
//	W/S   - Move target along z
//	V     - Toggle side (x-z) and top (x-y) view
//	Q     - Quit
package viz

// Package viz renders runs in the terminal.
//
// [Report] prints the end-of-run summary with diagnostic curves drawn by
// asciigraph. [Model] is a Bubble Tea program that follows a run while it is
// in progress: it is fed through a [Feed], which the simulation sees as an
// observer and a snapshot sink.
//
// # Key Bindings
//
//	Space - Freeze/unfreeze the display
//	Q     - Stop the run and quit
package viz

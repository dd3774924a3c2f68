// Package command defines the lifecycle every dispatchable command follows and
// the request format used to hand arguments from the any-cli host to a command.
//
// A command implements Init and Exec. Base drives it through four phases:
// runtime validation, argument parsing, initialization and execution. The
// first failing phase stops the run and is reported once as a *PhaseError.
//
// Out-of-process Go commands call Main from their own main function:
//
//	func main() {
//		os.Exit(command.Main(&myCommand{}))
//	}
package command

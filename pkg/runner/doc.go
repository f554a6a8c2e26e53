/*
Package runner implements the operator trial loop of a tuning session.

Each iteration re-reads the PID gains from the controller, shows them with the pending
move distance and accepts exactly one operator command:

	(empty line)  run a recorded move of the pending distance
	P, I, D       edit a gain
	M             edit the move distance, in display units
	?             show help
	Q             quit

Trials are delegated to a session.Manager; their processed traces are published to the
configured ReportSinks. Only a communication failure, context cancellation or the end of
operator input end the loop with an error.

# Usage

	r := runner.New(ctrl, session.NewManager(ctrl, axis),
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithSinks(console.New(os.Stdout)),
		runner.WithInitialDistance(1e-3),
	)
	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner

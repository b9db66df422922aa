package console

import (
	"context"
	"sync"

	"github.com/abiosoft/ishell/v2"
)

// Run opens the interactive shell. It returns when the operator exits, the
// server closes the connection, or ctx ends.
func (c *Console) Run(ctx context.Context, banner string) error {
	shell := ishell.New()
	shell.SetPrompt("vegad> ")
	shell.Println(banner)

	for _, name := range VerbNames() {
		name := name // per-iteration copy; module targets go 1.21 loop semantics
		shell.AddCmd(&ishell.Cmd{
			Name: name,
			Help: usage(name),
			Func: func(sc *ishell.Context) {
				if err := c.Submit(name, sc.Args); err != nil {
					sc.Err(err)
				}
			},
		})
	}

	var closeOnce sync.Once
	closeShell := func() { closeOnce.Do(shell.Close) }

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- c.Pump(pumpCtx)
		closeShell()
	}()
	stop := context.AfterFunc(ctx, closeShell)
	defer stop()

	shell.Run()
	// The shell has returned on its own; later pump or ctx exits must not close it again.
	disarm := func() {}
	closeOnce.Do(disarm)

	cancel()
	_ = c.conn.Close()
	return <-pumpErr
}

var argNames = map[string]string{
	"pointRA":    "<ra> <dec>",
	"pointGal":   "<l> <b>",
	"pointAzAlt": "<az> <alt>",
	"trackRA":    "<ra> <dec>",
	"trackGal":   "<l> <b>",
	"measure":    "<repo> <prefix> <rf_gain> <if_gain> <bb_gain> <center_freq> <bandwidth> <channels> <sample_time> <duration> <obs_mode> <raw_mode> <student>",
}

func usage(verb string) string {
	if args, ok := argNames[verb]; ok {
		return verb + " " + args
	}
	return verb
}

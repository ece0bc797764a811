package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openfroyo/hookguard/pkg/hookerr"
	"github.com/openfroyo/hookguard/pkg/instruction"
	"github.com/openfroyo/hookguard/pkg/policy"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/openfroyo/hookguard/pkg/wire"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var (
		inputPath  string
		events     bool
		eventTypes []string
		eventLevel string
		eventMint  string
		eventOwner string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Process instructions from a stream",
		Long: `Run the hook program as a long-lived process. Each input line is a JSON
instruction:

  {"program_id": "<base58>",
   "accounts": [{"pubkey": "<base58>", "is_signer": false, "is_writable": false}, ...],
   "data": "<base64>"}

A READY message line is written first. Each instruction is then dispatched
in its own ledger transaction and answered with one RESULT message line.
While serving, the metrics endpoint is exposed and, with policy.watch set,
operator policies are reloaded when their files change.`,
		Example: `  hookguard serve < instructions.jsonl
  hookguard serve --input instructions.jsonl --events
  hookguard serve --event-type hook.rejected < instructions.jsonl`,
		RunE: withRuntime(func(cmd *cobra.Command, rt *runtime, args []string) error {
			ctx := cmd.Context()

			in := cmd.InOrStdin()
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			if err := rt.tel.StartMetricsServer(); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}

			if rt.cfg.Policy.Watch && len(rt.cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(rt.tel.Logger.Zerolog())
				err := loader.Watch(ctx, rt.cfg.Policy.Paths, func(policies []policy.Policy) error {
					return rt.replacePolicies(ctx, policies)
				})
				if err != nil {
					return err
				}
			}

			enc := wire.NewEncoder(cmd.OutOrStdout())
			if eventLevel != "" {
				rt.tel.Events.AddFilter(telemetry.FilterByLevel(eventLevel))
			}
			if eventMint != "" {
				if _, err := parseKey("event-mint", eventMint); err != nil {
					return err
				}
				rt.tel.Events.AddFilter(telemetry.FilterByMint(eventMint))
			}
			if eventOwner != "" {
				if _, err := parseKey("event-owner", eventOwner); err != nil {
					return err
				}
				rt.tel.Events.AddFilter(telemetry.FilterByOwner(eventOwner))
			}
			if events || len(eventTypes) > 0 {
				var filter telemetry.EventFilter
				if len(eventTypes) > 0 {
					filter = telemetry.FilterByType(eventTypes...)
				}
				rt.tel.Events.Subscribe(func(event telemetry.Event) {
					_ = enc.EncodeEvent(event)
				}, filter)
			}

			if err := enc.EncodeReady(&wire.ReadyMessage{
				Version:   cmd.Root().Version,
				ProgramID: rt.programID(),
				PID:       os.Getpid(),
			}); err != nil {
				return err
			}

			return serveInstructions(ctx, rt.dispatcher, in, enc)
		}),
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "read instructions from a file instead of stdin")
	cmd.Flags().BoolVar(&events, "events", false, "interleave published events with results")
	cmd.Flags().StringSliceVar(&eventTypes, "event-type", nil, "only interleave events of these types (implies --events)")
	cmd.Flags().StringVar(&eventLevel, "event-level", "", "drop events below this level (info, warning, error)")
	cmd.Flags().StringVar(&eventMint, "event-mint", "", "drop events for other mints")
	cmd.Flags().StringVar(&eventOwner, "event-owner", "", "drop events for other owners")

	return cmd
}

// serveInstructions dispatches each input line until the input ends or ctx
// is done. Bad lines are answered with an error result; only a read or write
// failure stops the loop. When ctx is done an input that is an io.Closer is
// closed to release the reader goroutine. A read from a terminal or other
// non-pollable file is not interrupted by Close, so that goroutine can stay
// blocked until the process exits.
func serveInstructions(ctx context.Context, d *instruction.Dispatcher, in io.Reader, enc *wire.Encoder) error {
	dec := wire.NewDecoder(in)
	type decoded struct {
		line int
		ix   *wire.Instruction
		err  error
	}
	lines := make(chan decoded)

	go func() {
		defer close(lines)
		for {
			ix, err := dec.Decode()
			if err == io.EOF {
				return
			}
			select {
			case lines <- decoded{line: dec.Line(), ix: ix, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && hookerr.CodeOf(err) == "" {
				return
			}
		}
	}()

	n := 0
	for {
		select {
		case <-ctx.Done():
			if c, ok := in.(io.Closer); ok {
				_ = c.Close()
			}
			log.Info().Int("processed", n).Msg("Serve stopped")
			return nil

		case next, ok := <-lines:
			if !ok {
				log.Debug().Int("processed", n).Msg("Input closed")
				return nil
			}
			if next.err != nil && hookerr.CodeOf(next.err) == "" {
				return next.err
			}
			n++
			if err := enc.EncodeResult(processLine(ctx, d, next.line, next.ix, next.err)); err != nil {
				return err
			}
		}
	}
}

func processLine(ctx context.Context, d *instruction.Dispatcher, line int, ix *wire.Instruction, decodeErr error) *wire.Result {
	if decodeErr != nil {
		return wire.Failed(line, decodeErr)
	}
	gi, err := ix.Solana()
	if err != nil {
		return wire.Failed(line, err)
	}
	result, err := d.ProcessInstruction(ctx, gi)
	if err != nil {
		return wire.Failed(line, err)
	}
	return wire.Succeeded(line, result.Instruction, result)
}

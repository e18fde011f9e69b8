// Package ice provides a high-level API for driving an interposer
// board attached to an M3-class chip stack.
//
// # Overview
//
// This package orchestrates the complete board workflow:
//   - Negotiating a protocol version and capability set with the board
//   - Switching and querying power rails, with soft and hard resets
//   - Waking the chip over GOC with version-correct pulse timing
//   - Exchanging EIN frames, including chunked program transfers
//   - Sending bus messages and snooping bus traffic into a trace
//
// # Basic Usage
//
// The simplest way to talk to a board:
//
//	// User provides hardware communication (io.ReadWriter)
//	device, err := transport.OpenSerial("/dev/ttyUSB0", transport.BaudDefault)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create the session and negotiate with the board
//	sess := ice.New(device)
//	if err := sess.Connect(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	// Power the chip and ping it
//	ctx := context.Background()
//	sess.Power(ctx, power.RailVBatt, power.StateHigh)
//	sess.Power(ctx, power.Rail1P2, power.StateHigh)
//	sess.Power(ctx, power.Rail0P6, power.StateHigh)
//	id, err := sess.Ping(ctx, 0x01)
//
// # Progress Tracking
//
// Track program transfers with a callback:
//
//	sess := ice.New(device,
//	    ice.WithProgressCallback(func(p ice.Progress) {
//	        fmt.Printf("[%s] %.1f%% - Chunk %d/%d\n",
//	            p.Phase, p.Percentage, p.CurrentChunk, p.TotalChunks)
//	    }),
//	)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	sess := ice.New(device,
//	    ice.WithLogger(myLogger),
//	    ice.WithTimeout(10*time.Second),
//	    ice.WithRetries(5),
//	    ice.WithVersion(0, 4),
//	    ice.WithChunkSize(64),
//	)
//
// # Configuration Files
//
// Bench setups load their parameters from a YAML file:
//
//	cfg, err := ice.LoadConfig("bench.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// with the recognized keys ice-version, serial-path, baud,
// i2c-address-mask, ack-all, generate-messages and replay-file.
//
// # Logging
//
// Any logger with leveled keysAndValues methods plugs in through the
// Logger interface; see its documentation for an adapter example.
package ice

package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/audiolibrelab/wavesync/internal/decode"
	"github.com/audiolibrelab/wavesync/internal/output"
)

// ProducerStats counts what the producer did with the packets it read.
type ProducerStats struct {
	Packets      int
	Foreign      int // packets of other tracks
	DecodeErrors int
	Blocks       int
	Frames       uint64
}

// Producer decodes the default track of a stream, writes every block to the
// output and publishes the position after each write on the clock.
type Producer struct {
	stream decode.Stream
	open   output.Opener
	clock  *Clock
	life   *Lifecycle
	logger *slog.Logger

	out   output.Output
	stats ProducerStats
}

func NewProducer(stream decode.Stream, open output.Opener, clock *Clock, life *Lifecycle) *Producer {
	return &Producer{
		stream: stream,
		open:   open,
		clock:  clock,
		life:   life,
		logger: slog.Default().With("component", "producer"),
	}
}

// Stats returns the counters of a finished run.
func (p *Producer) Stats() ProducerStats {
	return p.stats
}

// Run decodes until end of stream, a fatal error, or ctx is cancelled.
// End of stream and cancellation return nil. The lifecycle is finished on
// every return path. A panic poisons the clock and is returned as an error.
func (p *Producer) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.clock.poison()
			err = fmt.Errorf("producer panic: %v", r)
		}
		if p.out != nil {
			if cerr := p.out.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output: %w", cerr)
			}
		}
		if p.life.Finish() {
			p.logger.Debug("Producer finished", "frames", p.stats.Frames, "blocks", p.stats.Blocks, "error", err)
		}
	}()

	track, err := p.stream.DefaultTrack()
	if err != nil {
		return fmt.Errorf("failed to select track: %w", err)
	}
	p.logger.Debug("Producer started", "track", track.ID, "codec", track.Codec, "sample_rate", track.SampleRate)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Producer stopped", "reason", ctx.Err())
			return nil
		default:
		}

		pkt, err := p.stream.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read packet: %w", err)
		}
		p.stats.Packets++

		if pkt.Track != track.ID {
			p.stats.Foreign++
			continue
		}

		block, err := p.stream.Decode(pkt)
		if err != nil {
			if decode.IsRecoverable(err) {
				p.stats.DecodeErrors++
				p.logger.Warn("Skipping undecodable packet", "error", err)
				continue
			}
			return fmt.Errorf("failed to decode packet: %w", err)
		}
		if block.Frames == 0 {
			continue
		}

		if p.out == nil {
			out, err := p.open(output.FormatOf(block))
			if err != nil {
				return fmt.Errorf("failed to open output: %w", err)
			}
			p.out = out
		}
		if err := p.out.Write(block); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		end := block.End()
		rate := track.SampleRate
		if rate <= 0 {
			rate = block.SampleRate
		}
		p.clock.Write(end, ElapsedOf(end, rate))
		p.stats.Blocks++
		p.stats.Frames += uint64(block.Frames)
	}
}

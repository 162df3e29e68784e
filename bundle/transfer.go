package bundle

import (
	"context"
	"fmt"

	"github.com/proxyre/prebundle/engine"
)

// Transfer protocol constants. The chunk size is a protocol choice,
// not a correctness requirement: reassembly is driven entirely by
// chunk indices, never by arrival order or message count.
const (
	// DEFAULT_CHUNK_SIZE is the chunk payload size used when packing
	// off-thread. Large enough to keep message overhead negligible,
	// small enough that a receiver can show progress.
	DEFAULT_CHUNK_SIZE = 256 * 1024
)

// MessageType identifies a transfer protocol message.
type MessageType int

const (
	// MessageChunk carries one indexed piece of the packed archive.
	MessageChunk MessageType = iota

	// MessageDone is the terminal success message. It carries no
	// payload; the receiver must already hold every chunk.
	MessageDone

	// MessageError is the terminal failure message.
	MessageError
)

// Message is one worker-to-caller protocol message. Chunk messages
// may be observed in any order; Index places the payload, and
// TotalChunks (identical on every chunk of one transfer) sizes the
// slot array.
type Message struct {
	Type        MessageType
	Index       int
	TotalChunks int
	Chunk       []byte
	Err         error
}

// TransferConfig configures the chunked pack worker.
type TransferConfig struct {
	ChunkSize int
	Logger    Logger
}

// DefaultTransferConfig returns the default worker configuration.
func DefaultTransferConfig() *TransferConfig {
	return &TransferConfig{ChunkSize: DEFAULT_CHUNK_SIZE}
}

// StartPack packs b on a background worker goroutine and streams the
// archive back as indexed chunk messages, ending with exactly one
// MessageDone or MessageError. The worker owns its inputs until the
// terminal message; the caller must not mutate b meanwhile. The
// channel is closed after the terminal message. Cancelling ctx makes
// the worker stop between sends and close the channel without a
// terminal message.
func (a *Archiver) StartPack(ctx context.Context, b *Bundle, names FileNames, f engine.Format, cfg *TransferConfig) <-chan Message {
	if cfg == nil {
		cfg = DefaultTransferConfig()
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DEFAULT_CHUNK_SIZE
	}

	out := make(chan Message)

	go func() {
		defer close(out)

		data, err := a.Pack(b, names, f)
		if err != nil {
			send(ctx, out, Message{Type: MessageError, Err: err})
			return
		}

		chunks := splitChunks(data, chunkSize)
		if cfg.Logger != nil {
			cfg.Logger.Printf("Packed archive: %d bytes in %d chunks", len(data), len(chunks))
		}
		for i, chunk := range chunks {
			msg := Message{
				Type:        MessageChunk,
				Index:       i,
				TotalChunks: len(chunks),
				Chunk:       chunk,
			}
			if !send(ctx, out, msg) {
				return
			}
		}

		send(ctx, out, Message{Type: MessageDone, TotalChunks: len(chunks)})
	}()

	return out
}

// Assemble consumes transfer messages and reassembles the archive.
// Chunks are placed by index into a slot array; completion requires
// every slot filled, counted per distinct index, so duplicate or
// missing indices can never produce false completion. Any error
// message, inconsistent chunk metadata, or ctx cancellation discards
// all accumulated chunks and fails the transfer.
func Assemble(ctx context.Context, msgs <-chan Message) ([]byte, error) {
	var (
		slots    [][]byte
		total    = -1
		filled   = 0
		terminal = false
	)

	for !terminal {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, ctx.Err())
		case msg, ok := <-msgs:
			if !ok {
				return nil, fmt.Errorf("%w: worker stopped before terminal message", ErrTransferFailed)
			}
			switch msg.Type {
			case MessageChunk:
				if msg.TotalChunks <= 0 {
					return nil, fmt.Errorf("%w: invalid total chunk count %d", ErrTransferFailed, msg.TotalChunks)
				}
				if total == -1 {
					total = msg.TotalChunks
					slots = make([][]byte, total)
				} else if msg.TotalChunks != total {
					return nil, fmt.Errorf("%w: total chunk count changed from %d to %d", ErrTransferFailed, total, msg.TotalChunks)
				}
				if msg.Index < 0 || msg.Index >= total {
					return nil, fmt.Errorf("%w: chunk index %d out of range [0,%d)", ErrTransferFailed, msg.Index, total)
				}
				if slots[msg.Index] != nil {
					return nil, fmt.Errorf("%w: duplicate chunk index %d", ErrTransferFailed, msg.Index)
				}
				slots[msg.Index] = msg.Chunk
				filled++

			case MessageDone:
				terminal = true

			case MessageError:
				return nil, fmt.Errorf("%w: %v", ErrTransferFailed, msg.Err)

			default:
				return nil, fmt.Errorf("%w: unknown message type %d", ErrTransferFailed, msg.Type)
			}
		}
	}

	if total == -1 {
		return nil, fmt.Errorf("%w: no chunks received", ErrTransferFailed)
	}
	if filled != total {
		return nil, fmt.Errorf("%w: incomplete chunk set, got %d of %d", ErrTransferFailed, filled, total)
	}

	size := 0
	for _, chunk := range slots {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for _, chunk := range slots {
		data = append(data, chunk...)
	}
	return data, nil
}

// PackChunked packs b on a background worker and returns the
// reassembled archive. Callers impose timeouts through ctx.
func (a *Archiver) PackChunked(ctx context.Context, b *Bundle, names FileNames, f engine.Format, cfg *TransferConfig) ([]byte, error) {
	return Assemble(ctx, a.StartPack(ctx, b, names, f, cfg))
}

// splitChunks cuts data into fixed-size pieces; the final piece may
// be short. Empty input yields a single empty chunk so the protocol
// always has at least one indexed message.
func splitChunks(data []byte, chunkSize int) [][]byte {
	if len(data) == 0 {
		return [][]byte{nil}
	}
	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

// send delivers one message unless ctx is cancelled first.
func send(ctx context.Context, out chan<- Message, msg Message) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- msg:
		return true
	}
}

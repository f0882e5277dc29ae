package grbl

import (
	"bufio"
	"io"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mastercactapus/bedmesh/gcode"
)

// DefaultAck is the line prefix Grbl uses to acknowledge a command.
const DefaultAck = "ok"

// statusQuery is the Grbl realtime status report request. The reply is a
// chatter line, which is what lets the receiver stop.
const statusQuery = "?"

type receiverState int

const (
	receiverRunning receiverState = iota
	receiverStopRequested
	receiverStopped
)

// Config configures a Session.
type Config struct {
	// Audit, if set, receives every diverted line.
	Audit io.Writer

	// OnDivert, if set, is called with every diverted line, on the
	// goroutine calling SendAndAwait.
	OnDivert func(line string)
}

// Session owns a controller connection. A background receiver drains the
// transport and classifies lines, while SendAndAwait issues one command at a
// time and waits for its acknowledgment.
//
// Stopping is cooperative: after Close requests a stop, the receiver only
// exits once the next chatter line arrives, so it is never left halfway
// through an application line. Close asks for a status report to bound that
// wait.
type Session struct {
	rw  io.ReadWriteCloser
	cfg Config

	// mx serializes exchanges, wMx serializes writes.
	mx  sync.Mutex
	wMx sync.Mutex

	pending chan string
	stop    chan struct{}

	// stopped is closed when the receive loop exits, done once every
	// receiver goroutine has returned and err holds the group result.
	stopped chan struct{}
	done    chan struct{}
	err     error

	stopOnce  sync.Once
	closeOnce sync.Once
	rwOnce    sync.Once
	rwErr     error

	results []string
}

// Open starts a session on rw.
func Open(rw io.ReadWriteCloser, cfg Config) *Session {
	s := &Session{
		rw:      rw,
		cfg:     cfg,
		pending: make(chan string),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)

	var group errgroup.Group
	group.Go(func() error {
		s.readLoop(lines, scanErr, s.stopped)
		return nil
	})
	group.Go(func() error {
		defer close(s.stopped)
		err := s.receive(lines, scanErr)
		if err != nil {
			// unblock the reader
			s.closeTransport()
		}
		return err
	})
	go func() {
		s.err = group.Wait()
		close(s.done)
	}()

	return s
}

func (s *Session) closeTransport() {
	s.rwOnce.Do(func() { s.rwErr = s.rw.Close() })
}

// readLoop does the blocking reads so the receive loop can keep delivering
// queued lines while the transport is idle.
func (s *Session) readLoop(lines chan<- string, scanErr chan<- error, quit <-chan struct{}) {
	defer close(lines)
	scan := bufio.NewScanner(s.rw)
	for scan.Scan() {
		select {
		case lines <- strings.TrimSuffix(scan.Text(), "\r"):
		case <-quit:
			return
		}
	}
	scanErr <- scan.Err()
}

func (s *Session) receive(lines <-chan string, scanErr <-chan error) error {
	defer close(s.pending)

	state := receiverRunning
	var queue []string
	for state != receiverStopped {
		var out chan<- string
		var next string
		if len(queue) > 0 {
			out = s.pending
			next = queue[0]
		}

		select {
		case out <- next:
			queue = queue[1:]
			continue
		case line, ok := <-lines:
			if !ok {
				if state == receiverStopRequested {
					return nil
				}
				err := <-scanErr
				if err == nil {
					err = io.ErrUnexpectedEOF
				}
				return &TransportError{Op: "read", Err: err}
			}

			// line boundary: observe a stop request before classifying
			if state == receiverRunning {
				select {
				case <-s.stop:
					state = receiverStopRequested
				default:
				}
			}

			switch Classify(line) {
			case LineAlarm:
				return &AlarmError{Line: line}
			case LineData:
				queue = append(queue, line)
			case LineChatter:
				if state == receiverStopRequested {
					state = receiverStopped
				}
			}
		}
	}

	if len(queue) > 0 {
		log.Printf("WARNING: dropping %d unread lines on stop", len(queue))
	}
	return nil
}

// fatal waits for the receiver goroutines and returns the error that ended
// them. Only call once the receive loop has stopped.
func (s *Session) fatal() error {
	<-s.done
	if s.err != nil {
		return s.err
	}
	return ErrClosed
}

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) write(data string) error {
	s.wMx.Lock()
	defer s.wMx.Unlock()
	_, err := io.WriteString(s.rw, data)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// SendAndAwait sends cmd and blocks until a line starting with ack arrives,
// returning that line. An empty ack means DefaultAck.
//
// Other lines received meanwhile are diverted, in order, to Results. There is
// no timeout: a silent controller blocks forever.
func (s *Session) SendAndAwait(cmd, ack string) (string, error) {
	if ack == "" {
		ack = DefaultAck
	}
	s.mx.Lock()
	defer s.mx.Unlock()

	select {
	case <-s.stopped:
		return "", s.fatal()
	default:
	}

	err := s.write(strings.TrimRight(cmd, "\r\n") + "\n")
	if err != nil {
		return "", err
	}

	for line := range s.pending {
		if strings.HasPrefix(line, ack) {
			return line, nil
		}
		if strings.HasPrefix(line, "error:") {
			return "", &CommandError{Command: cmd, Line: line}
		}
		s.divert(line)
	}

	return "", s.fatal()
}

func (s *Session) divert(line string) {
	s.results = append(s.results, line)
	if s.cfg.Audit != nil {
		_, err := io.WriteString(s.cfg.Audit, line+"\n")
		if err != nil {
			log.Println("ERROR: write audit log:", err)
		}
	}
	if s.cfg.OnDivert != nil {
		s.cfg.OnDivert(line)
	}
}

// Results returns and clears the lines diverted so far.
func (s *Session) Results() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	res := s.results
	s.results = nil
	return res
}

// Run sends each block and waits for its acknowledgment.
func (s *Session) Run(blocks []gcode.Block) error {
	for _, b := range blocks {
		_, err := s.SendAndAwait(b.String(), DefaultAck)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close stops the receiver and closes the transport. It waits for the
// receiver to see a chatter line after the stop request.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stopOnce.Do(func() { close(s.stop) })

		select {
		case <-s.stopped:
		default:
			err := s.write(statusQuery)
			if err != nil {
				log.Println("ERROR: request status on close:", err)
			} else {
				<-s.stopped
			}
		}

		s.closeTransport()
		<-s.done
	})
	return s.rwErr
}

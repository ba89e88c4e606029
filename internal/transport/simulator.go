package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/protocol/frame"
)

// Reply is the scripted answer to one command. Silent replies emit nothing so
// the host observes a timeout.
type Reply struct {
	Lines  []string
	Status protocol.Status
	Silent bool
}

func OK(lines ...string) Reply {
	return Reply{Lines: lines, Status: protocol.StatusOK}
}

func Error(lines ...string) Reply {
	return Reply{Lines: lines, Status: protocol.StatusError}
}

func Silent() Reply {
	return Reply{Silent: true}
}

// Handler computes a reply for commands matching a prefix.
type Handler func(command string) Reply

type Script map[string]Reply

type prefixHandler struct {
	prefix string
	fn     Handler
}

type scheduled struct {
	at   time.Time
	data []byte
}

// Simulator is an in-memory device speaking the sentinel-framed command
// protocol. Commands are matched exactly first, then by registered prefix;
// anything else is answered with ERROR.
type Simulator struct {
	mu       sync.Mutex
	script   Script
	prefixes []prefixHandler
	inbound  []byte
	outbound []byte
	pending  []scheduled
	received []string
	writeErr error

	latency  time.Duration
	readSize int
	now      func() time.Time
}

var _ Conn = (*Simulator)(nil)

type SimulatorOption func(*Simulator)

// WithLatency delays every reply by d.
func WithLatency(d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if d > 0 {
			s.latency = d
		}
	}
}

// WithReadSize caps the bytes returned by one TryRead, forcing the host to
// reassemble lines across reads.
func WithReadSize(n int) SimulatorOption {
	return func(s *Simulator) {
		if n > 0 {
			s.readSize = n
		}
	}
}

func NewSimulator(script Script, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		script: make(Script, len(script)),
		now:    time.Now,
	}
	for cmd, reply := range script {
		s.script[cmd] = reply
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Script replaces the reply for an exact command.
func (s *Simulator) Script(command string, reply Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[command] = reply
}

// HandlePrefix routes commands starting with prefix to fn when no exact
// script entry exists. Later registrations win.
func (s *Simulator) HandlePrefix(prefix string, fn Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = append([]prefixHandler{{prefix: prefix, fn: fn}}, s.prefixes...)
}

// Emit queues unsolicited device output such as boot banners or URCs.
func (s *Simulator) Emit(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines {
		s.outbound = append(s.outbound, line...)
		s.outbound = append(s.outbound, "\r\n"...)
	}
}

// FailWrites makes subsequent writes return err. A nil err restores writes.
func (s *Simulator) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Received returns the commands the device has parsed so far.
func (s *Simulator) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

func (s *Simulator) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.inbound = append(s.inbound, p...)
	for {
		advance, token, _ := frame.ScanMessages(s.inbound, false)
		if advance == 0 {
			return nil
		}
		command := string(token)
		s.inbound = s.inbound[advance:]
		s.received = append(s.received, command)
		s.respond(command)
	}
}

func (s *Simulator) TryRead() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for len(s.pending) > 0 && !now.Before(s.pending[0].at) {
		s.outbound = append(s.outbound, s.pending[0].data...)
		s.pending = s.pending[1:]
	}
	if len(s.outbound) == 0 {
		return nil, nil
	}
	n := len(s.outbound)
	if s.readSize > 0 && n > s.readSize {
		n = s.readSize
	}
	out := make([]byte, n)
	copy(out, s.outbound[:n])
	s.outbound = s.outbound[n:]
	return out, nil
}

func (s *Simulator) Close() error {
	return nil
}

func (s *Simulator) respond(command string) {
	reply := s.lookup(command)
	if reply.Silent {
		return
	}
	var b strings.Builder
	for _, line := range reply.Lines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	if reply.Status.Observed() {
		b.WriteString(string(reply.Status))
		b.WriteString("\r\n")
	}
	data := []byte(b.String())
	// Replies stay in command order even when earlier ones are delayed.
	if s.latency == 0 && len(s.pending) == 0 {
		s.outbound = append(s.outbound, data...)
		return
	}
	s.pending = append(s.pending, scheduled{at: s.now().Add(s.latency), data: data})
}

func (s *Simulator) lookup(command string) Reply {
	if reply, ok := s.script[command]; ok {
		return reply
	}
	for _, h := range s.prefixes {
		if strings.HasPrefix(command, h.prefix) {
			return h.fn(command)
		}
	}
	return Error()
}

// NewNRF9160 returns a simulator answering like an nRF9160 modem with a
// registered LTE-M connection. Credential writes through %CMNG are stored and
// read back as the SHA-256 of the quoted content.
func NewNRF9160(opts ...SimulatorOption) *Simulator {
	s := NewSimulator(NRF9160Script(), opts...)
	store := newCredentialStore()
	s.HandlePrefix("AT%CMNG=", store.handle)
	return s
}

// NRF9160Script holds canned replies for the default test list.
func NRF9160Script() Script {
	return Script{
		"AT":              OK(),
		"AT+CFUN=1":       OK(),
		"AT+CFUN=0":       OK(),
		"AT+CEREG?":       OK("+CEREG: 5,1,\"0A3B\",\"01A2D101\",7"),
		"AT+CGMI":         OK("Nordic Semiconductor ASA"),
		"AT+CGMR":         OK("mfw_nrf9160_1.3.5"),
		"AT+CGMM":         OK("nRF9160-SICA"),
		"AT+CGSN":         OK("352656100367872"),
		"AT+CIMI":         OK("234500024531391"),
		"AT%XICCID":       OK("%XICCID: 8901234567012345678F"),
		"AT%XMONITOR":     OK(`%XMONITOR: 1,"EDAV","EDAV","26295","00B7",7,4,"00011B07",7,2300,63,39,"","11100000","11100000","01001001"`),
		"AT%XVBAT":        OK("%XVBAT: 5000"),
		"AT%XTEMP?":       OK("%XTEMP: 24"),
		"AT%XSYSTEMMODE?": OK("%XSYSTEMMODE: 1,0,1,0"),
	}
}

type credentialStore struct {
	mu   sync.Mutex
	shas map[string]string
}

func newCredentialStore() *credentialStore {
	return &credentialStore{shas: make(map[string]string)}
}

// handle serves AT%CMNG=<opcode>,<tag>,<type>[,"<content>"].
func (c *credentialStore) handle(command string) Reply {
	args := strings.TrimPrefix(command, "AT%CMNG=")
	content := ""
	if i := strings.IndexByte(args, '"'); i >= 0 {
		j := strings.LastIndexByte(args, '"')
		if j <= i {
			return Error()
		}
		content = args[i+1 : j]
		args = strings.TrimSuffix(args[:i], ",")
	}
	fields := strings.Split(args, ",")

	c.mu.Lock()
	defer c.mu.Unlock()
	switch fields[0] {
	case "0":
		if len(fields) != 3 || content == "" {
			return Error()
		}
		sum := sha256.Sum256([]byte(content))
		c.shas[key(fields[1], fields[2])] = strings.ToUpper(hex.EncodeToString(sum[:]))
		return OK()
	case "1":
		if len(fields) != 3 {
			return Error()
		}
		sha, ok := c.shas[key(fields[1], fields[2])]
		if !ok {
			return Error()
		}
		return OK(fmt.Sprintf("%%CMNG: %s,%s,\"%s\"", fields[1], fields[2], sha))
	case "3":
		if len(fields) != 3 {
			return Error()
		}
		delete(c.shas, key(fields[1], fields[2]))
		return OK()
	default:
		return Error()
	}
}

func key(tag, kind string) string {
	return tag + "/" + kind
}

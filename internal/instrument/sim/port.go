package sim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/frequency-response/internal/instrument"
)

// ErrUnreachable is returned by Attach on a port marked unreachable
var ErrUnreachable = errors.New("instrument unreachable")

// ErrUnknownCommand is returned for queries the bench does not implement
var ErrUnknownCommand = errors.New("unknown command")

const (
	scopeIdentity     = "Siglent Technologies,SDS1104X-E,SIM00000000001,8.2.6.1.37R9"
	generatorIdentity = "Rigol Technologies,DG1022Z,SIM0000000002,00.03.00"
)

// Kind selects which instrument of the bench a port or listener speaks for
type Kind int

const (
	KindScope Kind = iota
	KindGenerator
)

func (k Kind) String() string {
	if k == KindGenerator {
		return "generator"
	}
	return "oscilloscope"
}

// Port is an in process instrument.Transport connected to one instrument of a bench
type Port struct {
	bench       *Bench
	kind        Kind
	attached    bool
	unreachable bool
	commands    []string
}

var _ instrument.Transport = (*Port)(nil)

// Scope returns a new port to the bench oscilloscope
func (b *Bench) Scope() *Port {
	return &Port{bench: b, kind: KindScope}
}

// Generator returns a new port to the bench generator
func (b *Bench) Generator() *Port {
	return &Port{bench: b, kind: KindGenerator}
}

// SetUnreachable makes subsequent Attach calls fail
func (p *Port) SetUnreachable(unreachable bool) {
	p.unreachable = unreachable
}

// Attached reports whether the port is attached
func (p *Port) Attached() bool {
	return p.attached
}

// Commands returns every command written or queried since the port was created
func (p *Port) Commands() []string {
	return append([]string(nil), p.commands...)
}

func (p *Port) Attach(addr string) error {
	if _, _, err := instrument.ParseAddress(addr); err != nil {
		return err
	}
	if p.unreachable {
		return fmt.Errorf("%w: %s %s", ErrUnreachable, p.kind, addr)
	}
	p.attached = true
	return nil
}

func (p *Port) Detach() error {
	p.attached = false
	return nil
}

func (p *Port) Write(cmd string) error {
	if !p.attached {
		return instrument.ErrNotAttached
	}
	p.commands = append(p.commands, cmd)
	_, err := p.bench.Exec(p.kind, cmd)
	return err
}

func (p *Port) Query(cmd string) (string, error) {
	if !p.attached {
		return "", instrument.ErrNotAttached
	}
	p.commands = append(p.commands, cmd)
	return p.bench.Exec(p.kind, cmd)
}

// Exec runs one command against the instrument of the given kind. Queries
// return a newline terminated reply, settings return an empty one.
func (b *Bench) Exec(kind Kind, cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cmd = strings.TrimSpace(cmd)
	if strings.EqualFold(cmd, "*IDN?") {
		if kind == KindGenerator {
			return generatorIdentity + "\n", nil
		}
		return scopeIdentity + "\n", nil
	}

	if kind == KindGenerator {
		return b.execGenerator(cmd)
	}
	return b.execScope(cmd)
}

// execGenerator handles the :SOURn and :OUTPn subsystems
func (b *Bench) execGenerator(cmd string) (string, error) {
	head, arg, _ := strings.Cut(cmd, " ")
	head = strings.ToUpper(head)

	switch {
	case strings.HasPrefix(head, ":OUTP"):
		n, ok := genIndex(strings.TrimSuffix(head[len(":OUTP"):], "?"))
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		if strings.HasSuffix(head, "?") {
			return onOffString(b.gen[n].output) + "\n", nil
		}
		b.gen[n].output = parseOnOff(arg)
		return "", nil

	case strings.HasPrefix(head, ":SOUR"):
		rest := head[len(":SOUR"):]
		num, sub, _ := strings.Cut(rest, ":")
		n, ok := genIndex(num)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		return b.execSource(n, sub, arg, cmd)
	}

	b.logUnknown(KindGenerator, cmd)
	return "", nil
}

func (b *Bench) execSource(n int, sub, arg, cmd string) (string, error) {
	g := &b.gen[n]

	if strings.HasSuffix(sub, "?") {
		var v float64
		switch strings.TrimSuffix(sub, "?") {
		case "FREQ":
			v = g.freq
		case "VOLT":
			v = g.vpp
		case "VOLT:OFFS":
			v = g.offset
		case "PHAS":
			v = g.phase
		default:
			return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		return formatValue(v, "") + "\n", nil
	}

	switch sub {
	case "APPL:SIN":
		parts := strings.Split(arg, ",")
		vals := make([]float64, len(parts))
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return "", fmt.Errorf("%q: %w", cmd, err)
			}
			vals[i] = v
		}
		dst := []*float64{&g.freq, &g.vpp, &g.offset, &g.phase}
		for i := 0; i < len(vals) && i < len(dst); i++ {
			*dst[i] = vals[i]
		}
		return "", nil
	case "PHAS:SYNC":
		return "", nil
	}

	v, err := parseValue(arg)
	if err != nil {
		return "", fmt.Errorf("%q: %w", cmd, err)
	}
	switch sub {
	case "FREQ":
		g.freq = v
	case "VOLT":
		g.vpp = v
	case "VOLT:OFFS":
		g.offset = v
	case "PHAS":
		g.phase = v
	default:
		b.logUnknown(KindGenerator, cmd)
	}
	return "", nil
}

// execScope handles the Siglent command set: global settings, per channel "Cn:" settings and queries
func (b *Bench) execScope(cmd string) (string, error) {
	head, arg, _ := strings.Cut(cmd, " ")
	head = strings.ToUpper(head)
	arg = strings.TrimSpace(arg)

	prefix, name, scoped := strings.Cut(head, ":")
	if !scoped {
		return b.execScopeGlobal(head, arg, cmd)
	}

	if a, c, ok := strings.Cut(prefix, "-"); ok && name == "MEAD?" {
		ch1, ok1 := parseChannel(a)
		ch2, ok2 := parseChannel(c)
		if !ok1 || !ok2 {
			return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		v, unit, ok := b.measureDelay(ch1, ch2, strings.ToUpper(arg))
		if !ok {
			return fmt.Sprintf("%s:MEAD %s,%s\n", prefix, strings.ToUpper(arg), noResult), nil
		}
		return fmt.Sprintf("%s:MEAD %s,%s\n", prefix, strings.ToUpper(arg), formatValue(v, unit)), nil
	}

	ch, ok := parseChannel(prefix)
	if !ok {
		b.logUnknown(KindScope, cmd)
		return "", nil
	}
	sc := &b.scope[ch]

	switch name {
	case "PAVA?":
		param := strings.ToUpper(arg)
		v, unit, ok := b.measure(ch, param)
		if !ok {
			return fmt.Sprintf("%s:PAVA %s,%s\n", prefix, param, noResult), nil
		}
		return fmt.Sprintf("%s:PAVA %s,%s\n", prefix, param, formatValue(v, unit)), nil
	case "VDIV?":
		return fmt.Sprintf("%s:VDIV %s\n", prefix, formatValue(sc.vdiv, "V")), nil
	case "OFST?":
		return fmt.Sprintf("%s:OFST %s\n", prefix, formatValue(sc.offset, "V")), nil
	case "ATTN?":
		return fmt.Sprintf("%s:ATTN %g\n", prefix, sc.atten), nil
	case "TRACE?":
		return fmt.Sprintf("%s:TRACE %s\n", prefix, onOffString(sc.trace)), nil
	case "TRACE":
		sc.trace = parseOnOff(arg)
	case "BWL":
		sc.bwl = parseOnOff(arg)
	case "INVS":
		sc.invert = parseOnOff(arg)
	case "CPL":
		sc.dc = strings.HasPrefix(strings.ToUpper(arg), "D")
	case "TRSL":
		sc.falling = strings.EqualFold(arg, "NEG")
	case "UNIT":
	case "VDIV", "OFST", "ATTN", "SKEW", "TRLV":
		v, err := parseValue(arg)
		if err != nil {
			return "", fmt.Errorf("%q: %w", cmd, err)
		}
		switch name {
		case "VDIV":
			sc.vdiv = v
		case "OFST":
			sc.offset = v
		case "ATTN":
			sc.atten = v
		case "SKEW":
			sc.skew = v
		case "TRLV":
			sc.trigger = v
		}
	default:
		if strings.HasSuffix(name, "?") {
			return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		b.logUnknown(KindScope, cmd)
	}
	return "", nil
}

func (b *Bench) execScopeGlobal(head, arg, cmd string) (string, error) {
	switch head {
	case "TDIV":
		v, err := parseValue(arg)
		if err != nil {
			return "", fmt.Errorf("%q: %w", cmd, err)
		}
		b.tdiv = v
	case "TDIV?":
		return "TDIV " + formatValue(b.tdiv, "S") + "\n", nil
	case "TRDL":
		v, err := parseValue(arg)
		if err != nil {
			return "", fmt.Errorf("%q: %w", cmd, err)
		}
		b.delay = v
	case "TRMD":
		b.trigMode = strings.ToUpper(arg)
	case "TRMD?":
		return "TRMD " + b.trigMode + "\n", nil
	default:
		if strings.HasSuffix(head, "?") {
			return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
		}
		b.logUnknown(KindScope, cmd)
	}
	return "", nil
}

const noResult = "****"

func genIndex(s string) (int, bool) {
	switch s {
	case "1":
		return 0, true
	case "2":
		return 1, true
	}
	return 0, false
}

func onOffString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

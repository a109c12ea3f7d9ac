package dialx

import (
	"context"
	"fmt"
	"net"
	"strings"
)

type ListenerStages struct {
	Stages
}

func (ss *ListenerStages) UnmarshalText(text []byte) error {
	return ss.Stages.UnmarshalText(text, true)
}

type DialerStages struct {
	Stages
}

func (ss *DialerStages) UnmarshalText(text []byte) error {
	return ss.Stages.UnmarshalText(text, false)
}

// Stages is an ordered negotiation chain in its text form, e.g.
// "tls[servername=example.com]+socks5[addr=target:443]". It implements
// Negotiator by applying the stages in order.
type Stages []Stage

func (ss Stages) Negotiate(ctx context.Context, conn net.Conn) (net.Conn, error) {
	var err error
	for _, s := range ss {
		conn, err = s.Negotiate(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("negotiate %q: %w", s.String(), err)
		}
	}
	return conn, nil
}

func (ss Stages) String() string {
	strs := make([]string, len(ss))
	for i, s := range ss {
		strs[i] = s.String()
	}
	return strings.Join(strs, "+")
}

func (ss Stages) MarshalText() ([]byte, error) {
	return []byte(ss.String()), nil
}

func (ss *Stages) UnmarshalText(text []byte, server bool) error {
	parts := strings.Split(string(text), "+")
	*ss = make([]Stage, len(parts))
	for i := range parts {
		if err := (*ss)[i].UnmarshalText([]byte(parts[i]), server); err != nil {
			return err
		}
	}

	return nil
}

type ListenerStage struct {
	Stage
}

func (s *ListenerStage) UnmarshalText(text []byte) error {
	return s.Stage.UnmarshalText(text, true)
}

type DialerStage struct {
	Stage
}

func (s *DialerStage) UnmarshalText(text []byte) error {
	return s.Stage.UnmarshalText(text, false)
}

type Stage struct {
	Prot   string
	Params map[string]string
	neg    Negotiator
}

func (s Stage) Negotiate(ctx context.Context, conn net.Conn) (net.Conn, error) {
	if s.neg == nil {
		return conn, nil
	}
	return s.neg.Negotiate(ctx, conn)
}

func (s Stage) String() string {
	pairs := make([]string, 0, len(s.Params))
	for k, v := range s.Params {
		pairs = append(pairs, k+"="+v)
	}
	if len(pairs) > 0 {
		return fmt.Sprintf("%s[%s]", s.Prot, strings.Join(pairs, ","))
	}
	return s.Prot
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte, server bool) error {
	str := string(text)

	s.Prot = strings.ToLower(strings.TrimSpace(str))
	s.Params = map[string]string{}
	if idx := strings.Index(str, "["); idx != -1 {
		if !strings.HasSuffix(str, "]") {
			return fmt.Errorf("dialx: missing ']' in stage %q", str)
		}
		s.Prot = strings.ToLower(strings.TrimSpace(str[:idx]))
		for _, pair := range strings.Split(str[idx+1:len(str)-1], ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("dialx: invalid parameter %q", pair)
			}
			key := strings.ToLower(strings.TrimSpace(kv[0]))
			value := strings.TrimSpace(kv[1])
			if key == "" {
				return fmt.Errorf("dialx: empty parameter key")
			}
			s.Params[key] = value
		}
	}

	driver, err := GetDriver(s.Prot)
	if err != nil {
		return err
	}
	s.neg, err = driver(s.Params, server)
	if err != nil {
		return fmt.Errorf("dialx: setup driver %s: %w", s.Prot, err)
	}

	return nil
}

package vtytest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gosnmp/gosnmp"
	probing "github.com/prometheus-community/pro-bing"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/vtyconform/vtyconform/pkg/output"
	"github.com/vtyconform/vtyconform/pkg/session"
	"github.com/vtyconform/vtyconform/pkg/topology"
)

const (
	defaultNetTimeout = 5 * time.Second
	defaultCommunity  = "public"
)

// Network checks that need privileges or a live agent; tests replace them.
var (
	pingHost    = icmpPing
	fetchBanner = session.Banner
	snmpGet     = snmpGetValues
)

// resolveHost maps a topology device name to its address. Anything else is
// returned unchanged.
func (r *Runner) resolveHost(name string) string {
	if d, ok := r.Lab.Topology.Devices[name]; ok {
		return d.Address
	}
	return name
}

// ============================================================================
// verifyReachableExecutor
// ============================================================================

type verifyReachableExecutor struct{}

func (e *verifyReachableExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, anyDevice, func(dev *topology.Device, step *Step) (StepStatus, string) {
		sent, recv, err := pingHost(ctx, dev.Address, step.Count, boolParam(step.Params, "privileged"))
		if err != nil {
			return StepStatusError, err.Error()
		}
		rate := 0.0
		if sent > 0 {
			rate = float64(recv) / float64(sent)
		}
		return rateStatus("icmp "+dev.Address, rate, *step.Expect.SuccessRate)
	})
}

// icmpPing sends count echo requests from this host and reports how many
// were sent and answered.
func icmpPing(ctx context.Context, host string, count int, privileged bool) (int, int, error) {
	pr := probing.New(host)
	if err := pr.Resolve(); err != nil {
		return 0, 0, fmt.Errorf("DNS lookup '%s': %v", host, err)
	}
	pr.Count = count
	pr.Interval = 200 * time.Millisecond
	pr.Timeout = time.Duration(count)*time.Second + 2*time.Second
	pr.RecordRtts = false
	pr.SetPrivileged(privileged)
	pr.SetLogger(nil)

	if err := pr.RunWithContext(ctx); err != nil {
		return 0, 0, fmt.Errorf("pinging host '%s' (ip %s): %v", pr.Addr(), pr.IPAddr(), err)
	}
	stats := pr.Statistics()
	return stats.PacketsSent, stats.PacketsRecv, nil
}

// ============================================================================
// verifyBannerExecutor
// ============================================================================

type verifyBannerExecutor struct{}

func (e *verifyBannerExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, anyDevice, func(dev *topology.Device, step *Step) (StepStatus, string) {
		banner, err := fetchBanner(ctx, dev)
		if err != nil {
			return StepStatusError, err.Error()
		}
		return outputStatus(step.Expect, output.New("ssh banner", banner))
	})
}

// ============================================================================
// verifySNMPExecutor
// ============================================================================

type verifySNMPExecutor struct{}

// snmpQuery is one SNMP GET against a device.
type snmpQuery struct {
	Host      string
	Port      int
	Community string
	Version   gosnmp.SnmpVersion
	OIDs      []string
}

func (e *verifySNMPExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.checkForDevices(step, anyDevice, func(dev *topology.Device, step *Step) (StepStatus, string) {
		q := snmpQuery{
			Host:      dev.Address,
			Port:      intParam(step.Params, "port"),
			Community: strParam(step.Params, "community"),
			Version:   gosnmp.Version2c,
			OIDs:      strSliceParam(step.Params, "oid"),
		}
		if q.Community == "" {
			q.Community = dev.Community
		}
		if q.Community == "" {
			q.Community = defaultCommunity
		}
		if strParam(step.Params, "version") == "1" {
			q.Version = gosnmp.Version1
		}

		text, err := snmpGet(ctx, q)
		if err != nil {
			return StepStatusError, err.Error()
		}
		return outputStatus(step.Expect, output.New("snmpget "+strings.Join(q.OIDs, " "), text))
	})
}

// snmpGetValues performs the GET and renders one "oid = value" line per
// variable binding.
func snmpGetValues(ctx context.Context, q snmpQuery) (string, error) {
	client := &gosnmp.GoSNMP{
		Target:    q.Host,
		Port:      uint16(q.Port),
		Community: q.Community,
		Version:   q.Version,
		Retries:   1,
		Timeout:   defaultNetTimeout,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return "", fmt.Errorf("snmp connect %s:%d: %w", q.Host, q.Port, err)
	}
	defer client.Conn.Close()

	pkt, err := client.Get(q.OIDs)
	if err != nil {
		return "", fmt.Errorf("snmp get %s: %w", q.Host, err)
	}

	var b strings.Builder
	for _, pdu := range pkt.Variables {
		v, err := pduToString(pdu)
		if err != nil {
			v = fmt.Sprintf("<%v>", pdu.Type)
		}
		fmt.Fprintf(&b, "%s = %s\n", strings.TrimPrefix(pdu.Name, "."), v)
	}
	return b.String(), nil
}

func pduToString(pdu gosnmp.SnmpPDU) (string, error) {
	switch pdu.Type {
	case gosnmp.OctetString:
		bs, ok := pdu.Value.([]byte)
		if !ok {
			return "", fmt.Errorf("OctetString is not a []byte but %T", pdu.Value)
		}
		return strings.ToValidUTF8(string(bs), "�"), nil
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Integer, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).String(), nil
	case gosnmp.ObjectIdentifier:
		v, ok := pdu.Value.(string)
		if !ok {
			return "", fmt.Errorf("ObjectIdentifier is not a string but %T", pdu.Value)
		}
		return strings.TrimPrefix(v, "."), nil
	case gosnmp.IPAddress:
		v, ok := pdu.Value.(string)
		if !ok {
			return "", fmt.Errorf("IPAddress is not a string but %T", pdu.Value)
		}
		return v, nil
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return "noSuchObject", nil
	default:
		return "", fmt.Errorf("unsupported type: '%v'", pdu.Type)
	}
}

// ============================================================================
// verifyRADIUSExecutor
// ============================================================================

type verifyRADIUSExecutor struct{}

func (e *verifyRADIUSExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	rendered, err := r.renderFor(step, "")
	if err != nil {
		return &StepOutput{Result: &StepResult{Status: StepStatusError, Message: err.Error()}}
	}
	p := rendered.Params
	server := strParam(p, "server")
	addr := net.JoinHostPort(r.resolveHost(server), strconv.Itoa(intParam(p, "port")))

	code, err := radiusAuth(ctx, addr, strParam(p, "secret"), strParam(p, "user"), strParam(p, "password"))
	if err != nil {
		return &StepOutput{Result: &StepResult{Status: StepStatusError, Device: server, Message: err.Error()}}
	}

	got := "reject"
	if code == radius.CodeAccessAccept {
		got = "accept"
	}
	msg := fmt.Sprintf("%s for %s: %s", code, strParam(p, "user"), got)
	if got != rendered.Expect.Result {
		return &StepOutput{Result: &StepResult{
			Status: StepStatusFailed, Device: server,
			Message: fmt.Sprintf("%s (expected %s)", msg, rendered.Expect.Result),
		}}
	}
	return &StepOutput{Result: &StepResult{Status: StepStatusPassed, Device: server, Message: msg}}
}

// padPassword NUL-pads a PAP password to a multiple of 16 bytes (at least
// 16). The padded form is what RFC 2865 hides; the pinned radius release
// indexes the first 16 bytes of the plaintext unconditionally.
func padPassword(password string) []byte {
	n := max(16, (len(password)+15)/16*16)
	b := make([]byte, n)
	copy(b, password)
	return b
}

// radiusAuth sends a PAP Access-Request and returns the response code.
func radiusAuth(ctx context.Context, addr, secret, user, password string) (radius.Code, error) {
	pkt := radius.New(radius.CodeAccessRequest, []byte(secret))
	if err := rfc2865.UserName_SetString(pkt, user); err != nil {
		return 0, err
	}
	if err := rfc2865.UserPassword_Set(pkt, padPassword(password)); err != nil {
		return 0, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultNetTimeout)
		defer cancel()
	}
	resp, err := radius.Exchange(ctx, pkt, addr)
	if err != nil {
		return 0, fmt.Errorf("radius %s: %w", addr, err)
	}
	return resp.Code, nil
}

// ============================================================================
// verifyDBExecutor
// ============================================================================

type verifyDBExecutor struct{}

func (e *verifyDBExecutor) Execute(ctx context.Context, r *Runner, step *Step) *StepOutput {
	return r.pollForDevices(ctx, step, switchesOnly, func(dev *topology.Device, step *Step) (bool, string, error) {
		client, closeFn, err := dbClient(ctx, dev, step.Params)
		if err != nil {
			return false, "", err
		}
		defer closeFn()

		key := strParam(step.Params, "table") + strParam(step.Params, "separator") + strParam(step.Params, "key")
		return checkDBEntry(ctx, client, key, step.Expect)
	})
}

// dbClient connects to the device's Redis, through an SSH tunnel unless
// params.direct is set.
func dbClient(ctx context.Context, dev *topology.Device, params map[string]any) (*redis.Client, func(), error) {
	addr := strParam(params, "addr")
	var tunnel *session.Tunnel
	if !boolParam(params, "direct") {
		t, err := session.NewTunnel(ctx, dev, addr)
		if err != nil {
			return nil, nil, fmt.Errorf("tunnel to %s: %w", addr, err)
		}
		tunnel, addr = t, t.LocalAddr()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strParam(params, "password"),
		DB:       intParam(params, "db"),
	})
	closeFn := func() {
		client.Close()
		if tunnel != nil {
			tunnel.Close()
		}
	}
	return client, closeFn, nil
}

// checkDBEntry compares a hash entry with expect.exists and expect.fields.
func checkDBEntry(ctx context.Context, client *redis.Client, key string, expect *ExpectBlock) (bool, string, error) {
	n, err := client.Exists(ctx, key).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis exists %s: %w", key, err)
	}
	exists := n > 0

	if expect.Exists != nil && exists != *expect.Exists {
		if exists {
			return false, fmt.Sprintf("%s exists", key), nil
		}
		return false, fmt.Sprintf("%s not found", key), nil
	}
	if len(expect.Fields) == 0 {
		return true, fmt.Sprintf("%s exists=%t", key, exists), nil
	}

	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	for _, f := range sortedKeys(expect.Fields) {
		want := expect.Fields[f]
		got, ok := fields[f]
		if !ok {
			return false, fmt.Sprintf("%s: field %s missing", key, f), nil
		}
		if got != want {
			return false, fmt.Sprintf("%s: %s = %q, want %q", key, f, got, want), nil
		}
	}
	return true, fmt.Sprintf("%s: %d fields match", key, len(expect.Fields)), nil
}

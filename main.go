package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gregLibert/en50221/pkg/apdu"
	"github.com/gregLibert/en50221/pkg/ber"
	"github.com/gregLibert/en50221/pkg/config"
	"github.com/gregLibert/en50221/pkg/en50221"
	"github.com/gregLibert/en50221/pkg/logging"
)

// maxCaptureLine fits the hex form of the largest APDU plus the session prefix.
const maxCaptureLine = 2*(apdu.TagSize+3+ber.MaxLength) + 64

// Capture format, one directive per line:
//
//	# comment
//	@<session> <resource>     bind a session to a resource (name or hex resource id)
//	<session> <hex apdu>      APDU received from the module on that session

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	capturePath := flag.String("capture", "", "capture file to replay (default: stdin)")
	flag.Parse()

	// --- 1. Configuration ---
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Error loading configuration: %s", err)
		}
	}

	logger := newLogger(cfg)
	defer func() {
		_ = logger.Sync()
	}()

	// --- 2. Input ---
	in := io.Reader(os.Stdin)
	if *capturePath != "" {
		f, err := os.Open(*capturePath)
		if err != nil {
			log.Fatalf("Error opening capture: %s", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				log.Printf("Warning: Failed to close capture: %v", err)
			}
		}()
		in = f
	}

	// --- 3. Replay ---
	host, err := newHost(os.Stdout, logger, cfg.LengthPolicy(), time.Now)
	if err != nil {
		log.Fatalf("Error creating resources: %s", err)
	}

	if err := host.replay(in); err != nil {
		log.Fatalf("Replay failed: %s", err)
	}

	fmt.Fprintln(os.Stdout, "\n>> Replay Finished")
	host.printStats()
}

// newLogger stays silent unless the log section asks for output.
func newLogger(cfg config.Config) *zap.Logger {
	if cfg.Log.File == "" && !cfg.Log.Debug && !cfg.Log.Console {
		return zap.NewNop()
	}
	return logging.New(cfg.LoggingOptions())
}

// =========================================================================
// Host side of the replay
// =========================================================================

// host wires the four resources to a printing Sender and routes captured APDUs.
type host struct {
	out      io.Writer
	now      func() time.Time
	ai       *en50221.AI
	ca       *en50221.CA
	dateTime *en50221.DateTime
	dvb      *en50221.DVB
	byID     map[en50221.ResourceID]en50221.Resource
	sessions map[uint16]en50221.Resource
	line     int
}

func newHost(out io.Writer, logger *zap.Logger, policy en50221.LengthPolicy, now func() time.Time) (*host, error) {
	h := &host{
		out:      out,
		now:      now,
		sessions: make(map[uint16]en50221.Resource),
	}

	opts := []en50221.Option{en50221.WithLogger(logger), en50221.WithLengthPolicy(policy)}
	sender := en50221.SenderFunc(h.sendData)

	var err error
	if h.ai, err = en50221.NewAI(sender, opts...); err != nil {
		return nil, err
	}
	if h.ca, err = en50221.NewCA(sender, opts...); err != nil {
		return nil, err
	}
	if h.dateTime, err = en50221.NewDateTime(sender, opts...); err != nil {
		return nil, err
	}
	if h.dvb, err = en50221.NewDVB(sender, opts...); err != nil {
		return nil, err
	}

	h.byID = map[en50221.ResourceID]en50221.Resource{
		en50221.ResourceApplicationInformation: h.ai,
		en50221.ResourceConditionalAccess:      h.ca,
		en50221.ResourceDateTime:               h.dateTime,
		en50221.ResourceDVBHostControl:         h.dvb,
	}

	h.registerHandlers()
	return h, nil
}

// sendData prints what the host would transmit to the module.
func (h *host) sendData(sessionNumber uint16, data []byte) error {
	report, err := apdu.Describe(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "   <- host to module, session %d\n%s\n", sessionNumber, report)

	if tag, body, err := apdu.Split(data); err == nil && tag == apdu.TagDateTime {
		if utc, offset, hasOffset, err := en50221.DecodeDateTime(body); err == nil {
			if hasOffset {
				fmt.Fprintf(h.out, "      [DT] %s, local offset %s\n", utc.Format(time.RFC3339), offset)
			} else {
				fmt.Fprintf(h.out, "      [DT] %s\n", utc.Format(time.RFC3339))
			}
		}
	}
	return nil
}

func (h *host) registerHandlers() {
	h.ai.RegisterHandler(func(slot uint8, session uint16, info en50221.AppInfo) error {
		fmt.Fprintf(h.out, "      [AI] slot %d session %d: %s, manufacturer %04X/%04X, menu %q\n",
			slot, session, info.ApplicationType, info.ManufacturerID, info.ManufacturerCode,
			apdu.MakeSafeASCII(info.MenuString))
		return nil
	})

	h.ca.RegisterInfoHandler(func(slot uint8, session uint16, ids []uint16) error {
		fmt.Fprintf(h.out, "      [CA] slot %d session %d: %d CA system(s)", slot, session, len(ids))
		for _, id := range ids {
			fmt.Fprintf(h.out, " %04X", id)
		}
		fmt.Fprintln(h.out)
		return nil
	})

	h.ca.RegisterPMTReplyHandler(func(slot uint8, session uint16, reply en50221.CAPMTReply) error {
		fmt.Fprintf(h.out, "      [CA] slot %d session %d: program %d version %d: %s\n",
			slot, session, reply.ProgramNumber, reply.VersionNumber, describeCAEnable(reply.CAEnable))
		for _, s := range reply.Streams {
			fmt.Fprintf(h.out, "           PID %04X: %s\n", s.ElementaryPID, describeCAEnable(s.CAEnable))
		}
		return nil
	})

	h.dateTime.RegisterHandler(func(slot uint8, session uint16, interval time.Duration) error {
		fmt.Fprintf(h.out, "      [DT] slot %d session %d: date_time requested every %s\n", slot, session, interval)
		return h.dateTime.SendDateTime(session, h.now())
	})

	h.dvb.RegisterHandler(en50221.DVBHandlerFuncs{
		OnTune: func(slot uint8, session uint16, t en50221.Tune) error {
			fmt.Fprintf(h.out, "      [DVB] slot %d session %d: tune onid %04X tsid %04X sid %04X\n",
				slot, session, t.OriginalNetworkID, t.TransportStreamID, t.ServiceID)
			return nil
		},
		OnReplace: func(slot uint8, session uint16, r en50221.Replace) error {
			fmt.Fprintf(h.out, "      [DVB] slot %d session %d: replace #%d PID %04X -> %04X\n",
				slot, session, r.ReplacementRef, r.ReplacedPID, r.ReplacementPID)
			return nil
		},
		OnClearReplace: func(slot uint8, session uint16, ref uint8) error {
			fmt.Fprintf(h.out, "      [DVB] slot %d session %d: clear replace #%d\n", slot, session, ref)
			return nil
		},
	})
}

func describeCAEnable(e en50221.CAEnable) string {
	if !e.Present {
		return "no CA_enable"
	}
	return e.Value.String()
}

// replay processes the capture line by line. Protocol errors are reported and the replay
// continues; only unreadable input stops it.
func (h *host) replay(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxCaptureLine)
	for scanner.Scan() {
		h.line++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var err error
		if strings.HasPrefix(line, "@") {
			err = h.bind(strings.TrimPrefix(line, "@"))
		} else {
			err = h.deliver(line)
		}
		if err != nil {
			fmt.Fprintf(h.out, "   (!) line %d: %v\n", h.line, err)
		}
	}
	return scanner.Err()
}

// bind attaches a session to a resource, then opens the conversation the way a host does.
func (h *host) bind(directive string) error {
	session, arg, err := splitDirective(directive)
	if err != nil {
		return err
	}

	id, err := parseResourceID(arg)
	if err != nil {
		return err
	}
	res, ok := h.byID[id]
	if !ok {
		return fmt.Errorf("resource %s is not implemented", id)
	}
	h.sessions[session] = res

	fmt.Fprintf(h.out, "\n>> Session %d bound to %s (class %d, type %d, version %d)\n",
		session, id, id.Class(), id.Type(), id.Version())

	switch id {
	case en50221.ResourceApplicationInformation:
		return h.ai.Enquiry(session)
	case en50221.ResourceConditionalAccess:
		return h.ca.InfoEnquiry(session)
	}
	return nil
}

func (h *host) deliver(directive string) error {
	session, hexData, err := splitDirective(directive)
	if err != nil {
		return err
	}
	data, err := apdu.ParseHex(hexData)
	if err != nil {
		return err
	}

	res, ok := h.sessions[session]
	if !ok {
		return fmt.Errorf("session %d is not bound to a resource", session)
	}

	fmt.Fprintf(h.out, "   -> module to host, session %d\n", session)
	if report, err := apdu.Describe(data); err == nil {
		fmt.Fprintln(h.out, report)
	} else {
		fmt.Fprintf(h.out, "    - undecodable APDU %X\n", data)
	}

	return res.Message(0, session, uint32(res.ID()), data)
}

func (h *host) printStats() {
	for _, res := range []en50221.Resource{h.ai, h.ca, h.dateTime, h.dvb} {
		s := res.Stats()
		fmt.Fprintf(h.out, "   %-24s dispatched %d, delivered %d, rejected %d, clamped %d, sent %d\n",
			res.ID(), s.Dispatched, s.Delivered, s.Rejected, s.Clamped, s.Sent)
	}
}

func splitDirective(s string) (uint16, string, error) {
	fields := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(fields) != 2 {
		return 0, "", errors.New("expected '<session> <value>'")
	}
	session, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return 0, "", fmt.Errorf("invalid session %q: %w", fields[0], err)
	}
	return uint16(session), strings.TrimSpace(fields[1]), nil
}

func parseResourceID(s string) (en50221.ResourceID, error) {
	for _, id := range []en50221.ResourceID{
		en50221.ResourceApplicationInformation,
		en50221.ResourceConditionalAccess,
		en50221.ResourceDateTime,
		en50221.ResourceDVBHostControl,
	} {
		if strings.EqualFold(s, id.String()) {
			return id, nil
		}
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown resource %q", s)
	}
	return en50221.ResourceID(v), nil
}

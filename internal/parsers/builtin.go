package parsers

import (
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/danmuck/atbench/internal/parsed"
	"github.com/danmuck/atbench/internal/protocol"
)

// registrationStates covers +CEREG <stat> and %XMONITOR <reg_status>.
var registrationStates = map[int64]string{
	0: "not registered",
	1: "registered - home",
	2: "searching",
	3: "denied",
	4: "unknown",
	5: "registered - roaming",
}

var (
	ceregPattern      = regexp.MustCompile(`^\+CEREG: \d,(\d)`)
	xvbatPattern      = regexp.MustCompile(`^%XVBAT: (\d+)`)
	xtempPattern      = regexp.MustCompile(`^%XTEMP: (-?\d+)`)
	systemModePattern = regexp.MustCompile(`^%XSYSTEMMODE: (\d),(\d),(\d),(\d)`)
	shaPattern        = regexp.MustCompile(`[0-9A-Fa-f]{64}`)
)

const xmonitorPrefix = "%XMONITOR: "

// PassIfOK passes iff the device answered OK. The reply is kept verbatim.
func PassIfOK(reply string, status protocol.Status) (parsed.Result, bool) {
	desc := reply
	if desc == "" {
		desc = "(no reply)"
	}
	return parsed.Result{Value: parsed.String(reply), Description: desc}, status.OK()
}

// Verbatim passes iff the device answered OK with a non-empty reply.
func Verbatim(reply string, status protocol.Status) (parsed.Result, bool) {
	return parsed.Result{Value: parsed.String(reply), Description: reply}, status.OK() && strings.TrimSpace(reply) != ""
}

// VerbatimAfter is Verbatim with the label before the first sep removed,
// e.g. "%XICCID: 8901..." becomes "8901...".
func VerbatimAfter(sep string) Func {
	return func(reply string, status protocol.Status) (parsed.Result, bool) {
		if i := strings.Index(reply, sep); i >= 0 {
			reply = strings.TrimSpace(reply[i+len(sep):])
		}
		return Verbatim(reply, status)
	}
}

// Enumerated maps the integer captured by pattern through table. The
// default verdict passes for codes listed in ok.
func Enumerated(pattern *regexp.Regexp, table map[int64]string, ok ...int64) Func {
	return func(reply string, _ protocol.Status) (parsed.Result, bool) {
		m := pattern.FindStringSubmatch(reply)
		if m == nil {
			return parsed.Unparseable(reply), false
		}
		code, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return parsed.Unparseable(reply), false
		}
		desc, found := table[code]
		if !found {
			desc = "unknown"
		}
		return parsed.Result{Value: parsed.Int(code), Description: desc}, containsInt(ok, code)
	}
}

// NumericInRange extracts an integer with pattern and passes when it lies in
// [lo, hi]. render formats the value in human units.
func NumericInRange(pattern *regexp.Regexp, lo, hi int64, render func(int64) string) Func {
	return func(reply string, _ protocol.Status) (parsed.Result, bool) {
		m := pattern.FindStringSubmatch(reply)
		if m == nil {
			return parsed.Unparseable(reply), false
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return parsed.Unparseable(reply), false
		}
		return parsed.Result{Value: parsed.Int(v), Description: render(v)}, v >= lo && v <= hi
	}
}

// BatteryVoltage parses %XVBAT millivolts, plausible in 3300..5500 mV.
var BatteryVoltage = NumericInRange(xvbatPattern, 3300, 5500, func(mv int64) string {
	return fmt.Sprintf("%.2f V", float64(mv)/1000)
})

// ModemTemperature parses %XTEMP, plausible in -40..85 °C.
var ModemTemperature = NumericInRange(xtempPattern, -40, 85, func(c int64) string {
	return fmt.Sprintf("%d °C", c)
})

// Registration parses +CEREG?; registered home or roaming passes.
var Registration = Enumerated(ceregPattern, registrationStates, 1, 5)

// SystemMode parses %XSYSTEMMODE? into its four flags. LTE-M must be
// enabled.
func SystemMode(reply string, _ protocol.Status) (parsed.Result, bool) {
	m := systemModePattern.FindStringSubmatch(reply)
	if m == nil {
		return parsed.Unparseable(reply), false
	}
	flags := make([]int64, 4)
	for i := range flags {
		flags[i], _ = strconv.ParseInt(m[i+1], 10, 64)
	}
	rec := parsed.Record{
		"lte_m":          parsed.Int(flags[0]),
		"nb_iot":         parsed.Int(flags[1]),
		"gnss":           parsed.Int(flags[2]),
		"lte_preference": parsed.Int(flags[3]),
	}
	var modes []string
	for i, name := range []string{"LTE-M", "NB-IoT", "GNSS"} {
		if flags[i] != 0 {
			modes = append(modes, name)
		}
	}
	desc := strings.Join(modes, ", ")
	if desc == "" {
		desc = "(none)"
	}
	return parsed.Result{Value: rec, Description: desc}, flags[0] == 1
}

// SHADigest extracts a 64 hex digit SHA-256, as printed by %CMNG reads.
func SHADigest(reply string, status protocol.Status) (parsed.Result, bool) {
	sha := shaPattern.FindString(reply)
	if sha == "" {
		return parsed.Unparseable(reply), false
	}
	sha = strings.ToUpper(sha)
	return parsed.Result{Value: parsed.String(sha), Description: sha}, status.OK()
}

// XMonitor parses %XMONITOR into a record. RSRP is reported as an index;
// rsrp_dbm = index - rsrpOffset, also exposed as signal_dbm for limits
// written against the generic signal field. SNR is reported in tenths of a dB. The
// default verdict requires registration and, when RSRP is present, a value
// above minRSRP.
func XMonitor(rsrpOffset, minRSRP int64) Func {
	return func(reply string, _ protocol.Status) (parsed.Result, bool) {
		line, _, _ := strings.Cut(reply, "\n")
		if !strings.HasPrefix(line, xmonitorPrefix) {
			return parsed.Unparseable(reply), false
		}
		r := csv.NewReader(strings.NewReader(line[len(xmonitorPrefix):]))
		r.FieldsPerRecord = -1
		row, err := r.Read()
		if err != nil {
			return parsed.Unparseable(reply), false
		}
		for len(row) < 16 {
			row = append(row, "")
		}

		rec := parsed.Record{}
		reg, hasReg := digits(row[0])
		if !hasReg {
			reg = -1
		}
		rec["reg_status"] = parsed.Int(reg)
		rec["plmn"] = parsed.String(row[3])
		rec["tac"] = parsed.String(row[4])
		rec["cell_id"] = parsed.String(row[7])
		for name, raw := range map[string]string{"act": row[5], "band": row[6], "phys_cell_id": row[8], "earfcn": row[9]} {
			if v, ok := digits(raw); ok {
				rec[name] = parsed.Int(v)
			}
		}

		state, found := registrationStates[reg]
		if !found {
			state = "unknown"
		}
		parts := []string{state}
		if band, ok := rec["band"]; ok {
			parts = append(parts, "LTE band "+band.String())
		}
		rsrp, hasRSRP := digits(row[10])
		if hasRSRP {
			rsrp -= rsrpOffset
			rec["rsrp_dbm"] = parsed.Int(rsrp)
			rec["signal_dbm"] = parsed.Int(rsrp)
			parts = append(parts, fmt.Sprintf("RSRP %d dBm", rsrp))
		}
		if snr, ok := digits(row[11]); ok {
			db := float64(snr) / 10
			rec["snr_db"] = parsed.Float(db)
			parts = append(parts, fmt.Sprintf("SNR %.1f dB", db))
		}

		pass := (reg == 1 || reg == 5) && (!hasRSRP || rsrp > minRSRP)
		return parsed.Result{Value: rec, Description: strings.Join(parts, ", ")}, pass
	}
}

// digits parses an unsigned decimal field; anything else is absent.
func digits(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

func containsInt(list []int64, v int64) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

package serialmux

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// LineKind is the coarse classification of a line read from a device.
type LineKind string

const (
	LineNMEA    LineKind = "nmea"
	LineIMU     LineKind = "imu"
	LineUnknown LineKind = "unknown"
)

// imuFields is the column count of an IMU CSV record:
// t,ax,ay,az,gx,gy,gz,roll,pitch,yaw.
const imuFields = 10

// ClassifyLine reports whether line looks like an NMEA sentence or an IMU
// record. It only inspects the shape of the line; the gnss and inertial
// parsers do the real validation.
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "$") || strings.HasPrefix(line, "!") {
		return LineNMEA
	}
	fields := strings.Split(line, ",")
	if len(fields) != imuFields {
		return LineUnknown
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64); err != nil {
		return LineUnknown
	}
	return LineIMU
}

// Demux splits a combined stream, as produced by a bridge board that carries
// both devices on one port, into NMEA and IMU streams. Unknown lines are
// dropped. Both outputs close when in closes or ctx is done.
func Demux(ctx context.Context, in <-chan string) (nmea, imu <-chan string) {
	nmeaCh := make(chan string, SubscriberBuffer)
	imuCh := make(chan string, SubscriberBuffer)
	go func() {
		defer close(nmeaCh)
		defer close(imuCh)
		for {
			var line string
			var ok bool
			select {
			case <-ctx.Done():
				return
			case line, ok = <-in:
				if !ok {
					return
				}
			}
			var out chan string
			switch ClassifyLine(line) {
			case LineNMEA:
				out = nmeaCh
			case LineIMU:
				out = imuCh
			default:
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nmeaCh, imuCh
}

// NMEACommand frames body (without the leading $ or checksum) as a
// checksummed NMEA sentence terminated by CRLF.
func NMEACommand(body string) string {
	body = strings.TrimPrefix(body, "$")
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, sum)
}

// GNSSInitCommands asks a u-blox receiver to emit GGA and GST once per fix on
// its first UART. Receivers that do not understand PUBX ignore them.
func GNSSInitCommands() []string {
	return []string{
		NMEACommand("PUBX,40,GGA,0,1,0,0,0,0"),
		NMEACommand("PUBX,40,GST,0,1,0,0,0,0"),
	}
}

package main

import (
	"context"
	"log"
	"time"

	"github.com/banshee-data/geomeasure/internal/config"
	"github.com/banshee-data/geomeasure/internal/inertial"
	"github.com/banshee-data/geomeasure/internal/serialmux"
	"github.com/banshee-data/geomeasure/internal/timeutil"
)

// devNMEA is replayed by the mock receiver in -dev mode: a fix in central
// Budapest with a matching GST accuracy report.
var devNMEA = []string{
	"$GPGGA,092750.000,4730.0000,N,01903.0000,E,1,8,1.03,120.5,M,41.2,M,,*55",
	"$GPGST,092750.000,1.2,0.9,0.6,35.0,0.3,0.4,0.8*5B",
}

// restIMU emits a stationary IMU record stamped with the tick time.
func restIMU(now time.Time) string {
	return inertial.FormatSample(inertial.Sample{Accel: inertial.RestAccel, Time: now})
}

// devices holds the serial muxes and the line streams feeding the parsers.
// When both devices share a port there is a single mux and the streams come
// from serialmux.Demux.
type devices struct {
	muxes []serialmux.SerialMuxInterface
	gnss  serialmux.SerialMuxInterface
	imu   serialmux.SerialMuxInterface
}

func openDevices(cfg *config.Config, dev bool, clock timeutil.Clock) (*devices, error) {
	if dev {
		g := serialmux.NewMockSerialMux("gnss", serialmux.Replay(devNMEA...), time.Second, clock)
		i := serialmux.NewMockSerialMux("imu", restIMU, cfg.GetSampleInterval(), clock)
		return &devices{muxes: []serialmux.SerialMuxInterface{g, i}, gnss: g, imu: i}, nil
	}

	gnssPort, imuPort := cfg.GetGNSSPort(), cfg.GetIMUPort()
	if gnssPort != "" && gnssPort == imuPort {
		m, err := serialmux.NewRealSerialMux("bridge", gnssPort, serialmux.IMUOptions(cfg.GetIMUBaud()))
		if err != nil {
			return nil, err
		}
		return &devices{muxes: []serialmux.SerialMuxInterface{m}, gnss: m, imu: m}, nil
	}

	d := &devices{}
	var err error
	if d.gnss, err = openOrDisable("gnss", gnssPort, serialmux.GNSSOptions(cfg.GetGNSSBaud()), serialmux.GNSSInitCommands()); err != nil {
		return nil, err
	}
	if d.imu, err = openOrDisable("imu", imuPort, serialmux.IMUOptions(cfg.GetIMUBaud()), nil); err != nil {
		d.gnss.Close()
		return nil, err
	}
	d.muxes = []serialmux.SerialMuxInterface{d.gnss, d.imu}
	return d, nil
}

func openOrDisable(name, path string, opts serialmux.PortOptions, startup []string) (serialmux.SerialMuxInterface, error) {
	if path == "" {
		log.Printf("%s: no serial port configured, device disabled", name)
		return serialmux.NewDisabledSerialMux(name), nil
	}
	m, err := serialmux.NewRealSerialMux(name, path, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(startup...); err != nil {
		log.Printf("%s: %v", name, err)
	}
	log.Printf("%s: opened %s at %d baud", name, path, opts.BaudRate)
	return m, nil
}

// streams subscribes to the devices and returns the NMEA and IMU line
// channels. cleanup unsubscribes.
func (d *devices) streams(ctx context.Context) (nmea, imu <-chan string, cleanup func()) {
	if d.gnss == d.imu {
		id, ch := d.gnss.Subscribe()
		nmea, imu = serialmux.Demux(ctx, ch)
		return nmea, imu, func() { d.gnss.Unsubscribe(id) }
	}
	gid, gch := d.gnss.Subscribe()
	iid, ich := d.imu.Subscribe()
	return gch, ich, func() {
		d.gnss.Unsubscribe(gid)
		d.imu.Unsubscribe(iid)
	}
}

func (d *devices) Close() {
	for _, m := range d.muxes {
		if err := m.Close(); err != nil {
			log.Printf("%s: close: %v", m.Name(), err)
		}
	}
}

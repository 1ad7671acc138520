package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrockway/binary-watchface/control/battery"
	"github.com/jrockway/binary-watchface/control/face"
	"github.com/jrockway/binary-watchface/control/lightsensor"
	"github.com/jrockway/binary-watchface/control/max7219"
	"github.com/jrockway/binary-watchface/control/screen"
	"github.com/jrockway/binary-watchface/control/term"
	"github.com/jrockway/binary-watchface/control/timesource"
	"github.com/jrockway/periphflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/net/trace"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/extra/hostextra"
	hostv3 "periph.io/x/host/v3"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

var (
	bind         = flag.String("bind", ":8080", "address to bind for debug/metrics server")
	apa102       = flag.Bool("apa102", false, "draw the grid on an apa102 strip on -spi")
	max7219Path  = flag.String("max7219", "", "spidev device of a max7219 8x8 matrix, like /dev/spidev0.0; empty to disable")
	useTerm      = flag.Bool("term", false, "draw the face in this terminal")
	batteryName  = flag.String("battery", "BAT0", `power supply under /sys/class/power_supply, or "fixed:<level>" to pretend`)
	batteryPoll  = flag.Duration("battery-poll", 5*time.Second, "how often to check the battery for changes")
	zoneFile     = flag.String("zone-file", timesource.DefaultZoneFile, "time zone file to read and watch; $TZ overrides it")
	lightSensor  = flag.Bool("light-sensor", false, "switch to ambient mode in the dark using a tsl2591 on -i2c")
	i2cBus       = flag.String("i2c", "", "i2c bus that the light sensor is on")
	dark         = flag.Uint("dark", 20, "light sensor reading below which the room is dark")
	bright       = flag.Uint("bright", 200, "light sensor reading above which the room is lit")
	startAmbient = flag.Bool("ambient", false, "start in ambient mode")
	spiDev       string
)

// run starts f in the background and sends its error to a channel, unless ctx is done first.
func run(ctx context.Context, f func(context.Context) error) <-chan error {
	ch := make(chan error)
	go func() {
		err := f(ctx)
		select {
		case ch <- err:
		case <-ctx.Done():
		}
		close(ch)
	}()
	return ch
}

// thresholds checks the -dark and -bright flags against the range of a sensor reading.
func thresholds(dark, bright uint) (uint16, uint16, error) {
	if dark > math.MaxUint16 {
		return 0, 0, fmt.Errorf("-dark=%d is above the largest reading, %d", dark, math.MaxUint16)
	}
	if bright > math.MaxUint16 {
		return 0, 0, fmt.Errorf("-bright=%d is above the largest reading, %d", bright, math.MaxUint16)
	}
	if dark > bright {
		return 0, 0, fmt.Errorf("-dark=%d is above -bright=%d", dark, bright)
	}
	return uint16(dark), uint16(bright), nil
}

func main() {
	if _, err := hostextra.Init(); err != nil {
		log.Fatalf("init periph.io: %v", err)
	}
	if _, err := hostv3.Init(); err != nil {
		log.Fatalf("init periph.io/v3: %v", err)
	}
	periphflag.SPIDevVar(&spiDev, "spi", "", "spi bus that the apa102 strip is on")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())

	clock, err := timesource.NewSystem(*zoneFile)
	if err != nil {
		log.Fatalf("init time source: %v", err)
	}

	var bat battery.Source
	var sysfs *battery.Sysfs
	if fixed, ok, err := battery.ParseFixed(*batteryName); err != nil {
		log.Fatalf("init battery: %v", err)
	} else if ok {
		bat = fixed
	} else {
		sysfs, err = battery.OpenSysfs(battery.DefaultRoot, *batteryName)
		if err != nil {
			log.Fatalf("init battery: %v (use -battery=fixed:1 to run without one)", err)
		}
		bat = sysfs
	}

	var port spi.Port
	if *apa102 {
		p, err := spireg.Open(spiDev)
		if err != nil {
			log.Fatalf("open spi port %q: %v", spiDev, err)
		}
		port = p
	}
	leds, err := screen.NewScreen(port)
	if err != nil {
		log.Fatalf("init screen: %v", err)
	}
	leds.Blank()
	surfaces := face.Surfaces{leds}

	var matrix *max7219.Display
	if *max7219Path != "" {
		matrix, err = max7219.Open(*max7219Path)
		if err != nil {
			log.Fatalf("init max7219: %v", err)
		}
		surfaces = append(surfaces, matrix)
	}
	if *useTerm {
		surfaces = append(surfaces, term.New(os.Stdout))
	}

	cl, err := face.New(clock, bat, surfaces)
	if err != nil {
		log.Fatalf("init watch face: %v", err)
	}
	if *startAmbient {
		cl.Mode = face.Ambient
	}

	http.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/display.png", http.StatusFound)
	})
	http.Handle("/display.png", leds)
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/wake", cl.ServeWake)
	http.HandleFunc("/mode", cl.ServeMode)

	httpDoneCh := make(chan error)
	httpServer := http.Server{Addr: *bind}
	go func() {
		log.Printf("http server listening on %s", httpServer.Addr)
		err := httpServer.ListenAndServe()
		select {
		case httpDoneCh <- err:
		case <-ctx.Done():
		}
		close(httpDoneCh)
	}()

	zoneDoneCh := run(ctx, clock.Watch)
	var batteryDoneCh <-chan error
	if sysfs != nil {
		batteryDoneCh = run(ctx, func(ctx context.Context) error { return sysfs.Watch(ctx, *batteryPoll) })
	}
	var sensor *lightsensor.TSL2591
	var h *lightsensor.Hysteresis
	if *lightSensor {
		darkLevel, brightLevel, err := thresholds(*dark, *bright)
		if err != nil {
			log.Fatalf("light sensor: %v", err)
		}
		bus, err := i2creg.Open(*i2cBus)
		if err != nil {
			log.Fatalf("open i2c bus %q: %v", *i2cBus, err)
		}
		sensor, err = lightsensor.Open(bus, lightsensor.MediumGain, lightsensor.IntegrationTime200ms)
		if err != nil {
			log.Fatalf("init light sensor: %v", err)
		}
		h = &lightsensor.Hysteresis{Dark: darkLevel, Bright: brightLevel, Samples: 5}
		h.Sync(cl.Mode)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	loopDoneCh := run(ctx, cl.Run)
	log.Printf("watch face running")

	var lightDoneCh <-chan error
	if sensor != nil {
		lightDoneCh = run(ctx, func(ctx context.Context) error {
			return lightsensor.Watch(ctx, sensor, h, time.Second, cl.CurrentMode, cl.SetMode)
		})
	}

	httpAlive := true
loop:
	for {
		select {
		case err := <-httpDoneCh:
			log.Printf("http server died: %v", err)
			httpAlive = false
			break loop
		case err := <-loopDoneCh:
			log.Printf("watch face loop died: %v", err)
			break loop
		case err := <-zoneDoneCh:
			log.Printf("time zone watcher died: %v", err)
			break loop
		case err := <-batteryDoneCh:
			log.Printf("battery watcher died: %v", err)
			break loop
		case err := <-lightDoneCh:
			log.Printf("light sensor died: %v", err)
			break loop
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				log.Printf("wake")
				cl.Wake()
				continue
			case syscall.SIGUSR2:
				tctx, c := context.WithTimeout(ctx, time.Second)
				if err := cl.ToggleMode(tctx); err != nil {
					log.Printf("toggle mode: %v", err)
				}
				c()
				continue
			}
			log.Printf("interrupt")
			break loop
		}
	}
	signal.Stop(sigCh)
	cancel()

	// Blank the hardware so someone looking at the clock can tell that it isn't running.
	if err := leds.Blank(); err != nil {
		log.Printf("blank apa102: %v", err)
	}
	if matrix != nil {
		if err := matrix.Blank(); err != nil {
			log.Printf("blank max7219: %v", err)
		}
	}
	if httpAlive {
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		httpServer.Shutdown(tctx)
		c()
	}
	os.Exit(1)
}

// Command ohwes-sim boots the OHWES kernel on a simulated PC and drives it
// from the command line: raising IRQs, running the timer, typing keys, making
// a system call or forcing an exception. With -watch it reboots a fresh
// machine every time the machine config file changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"example.com/ohwes/kernel"
)

func main() {
	var (
		configPath = flag.String("config", "", "machine config (JSON); defaults are used when empty")
		debug      = flag.Bool("debug", false, "log CPU and device activity")
		memSize    = flag.Uint("mem", 0, "guest memory in bytes, overriding the config")
		irqs       = flag.String("irq", "", "comma separated IRQ lines to raise after boot")
		keys       = flag.String("keys", "", "comma separated hex scancodes to type after boot")
		doSyscall  = flag.Bool("syscall", false, "make a system call from ring 3 after boot")
		fault      = flag.Int("fault", -1, "exception vector to raise after boot")
		ticks      = flag.Int("ticks", 0, "timer periods to run after boot")
		timerHz    = flag.Uint("hz", 100, "timer interrupt rate for -ticks")
		watch      = flag.Bool("watch", false, "reboot whenever -config changes")
		probe      = flag.Bool("probe-vga", false, "read the host VGA registers through /dev/port and exit")
		version    = flag.Bool("version", false, "print the kernel version and exit")
	)
	flag.Parse()
	log.SetFlags(0)

	if *version {
		fmt.Println(kernel.Banner(), "("+kernel.Version+")")
		return
	}
	if *probe {
		if err := probeVGA(os.Stdout); err != nil {
			log.Fatalf("ohwes-sim: %v", err)
		}
		return
	}

	sc := scenario{Syscall: *doSyscall, Fault: *fault, Ticks: *ticks, TimerHz: uint32(*timerHz)}
	var err error
	if sc.IRQs, err = parseList(*irqs, 10); err != nil {
		log.Fatalf("ohwes-sim: -irq: %v", err)
	}
	if sc.Keys, err = parseList(*keys, 16); err != nil {
		log.Fatalf("ohwes-sim: -keys: %v", err)
	}
	if sc.Fault > 0xFF {
		log.Fatalf("ohwes-sim: -fault %d is not a vector", sc.Fault)
	}

	boot := func() error {
		cfg, err := loadMachineConfig(*configPath)
		if err != nil {
			return err
		}
		if *memSize != 0 {
			cfg.MemorySize = uint32(*memSize)
		}
		cfg.Boot.Debug = *debug
		_, err = runMachine(cfg, sc, os.Stdout)
		return err
	}

	if err := boot(); err != nil && !*watch {
		log.Fatalf("ohwes-sim: %v", err)
	} else if err != nil {
		log.Printf("ohwes-sim: %v", err)
	}
	if !*watch {
		return
	}
	if *configPath == "" {
		log.Fatal("ohwes-sim: -watch needs -config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("ohwes-sim: watching %s", *configPath)
	err = watchConfig(ctx, *configPath, func() {
		log.Printf("ohwes-sim: %s changed, rebooting", *configPath)
		if err := boot(); err != nil {
			log.Printf("ohwes-sim: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("ohwes-sim: %v", err)
	}
}

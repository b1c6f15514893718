// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command alpide-boot starts and supervises the ALPIDE DAQ processes.
//
// Each argument is one process command line. A process that exits with
// an error is restarted with a backoff delay; after too many crashes
// supervision gives up and a mail alert is sent.
//
//  $> alpide-boot -pmon 'alpide-daq /data/run42.raw' 'alpide-dump -stats /data/run42.raw'
package main // import "github.com/go-lpc/alpide/cmd/alpide-boot"

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

func main() {
	log.SetPrefix("alpide-boot: ")
	log.SetFlags(0)

	var (
		dir      = flag.String("dir", os.Getenv("ALPIDELOGDIR"), "directory for process log files")
		doMon    = flag.Bool("pmon", false, "enable pmon monitoring")
		doFreq   = flag.Duration("freq", 1*time.Second, "pmon frequency")
		restarts = flag.Int("restarts", 3, "number of automatic restarts per process")
		backoff  = flag.Duration("backoff", 5*time.Second, "delay before restarting a crashed process")
	)

	flag.Usage = func() {
		fmt.Printf(`alpide-boot starts and supervises the ALPIDE DAQ processes.

Usage: alpide-boot [OPTIONS] CMD1 [CMD2 [CMD3 ...]]

Example:

 $> alpide-boot -pmon 'alpide-daq /data/run42.raw'

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing DAQ process command line(s)")
	}

	sup := supervisor{
		dir:      *dir,
		doMon:    *doMon,
		freq:     *doFreq,
		restarts: *restarts,
		backoff:  *backoff,
		mail:     mailerFromEnv(),
	}
	if sup.dir == "" {
		sup.dir = "/var/log/alpide"
	}

	err := run(&sup, flag.Args())
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type supervisor struct {
	dir      string
	doMon    bool
	freq     time.Duration
	restarts int
	backoff  time.Duration
	mail     *mailer
}

func run(sup *supervisor, cmdlines []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	grp, ctx := errgroup.WithContext(ctx)
	for _, cmdline := range cmdlines {
		argv := strings.Fields(cmdline)
		if len(argv) == 0 {
			return fmt.Errorf("empty process command line")
		}
		grp.Go(func() error {
			return sup.supervise(ctx, argv)
		})
	}

	err := grp.Wait()
	if err != nil {
		return fmt.Errorf("could not supervise DAQ: %w", err)
	}
	return nil
}

// supervise keeps one DAQ process alive, restarting it with backoff
// until the crash budget is exhausted or the supervisor is stopped.
func (sup *supervisor) supervise(ctx context.Context, argv []string) error {
	name := filepath.Base(argv[0])
	for attempt := 0; ; attempt++ {
		err := sup.runOnce(ctx, name, argv)
		switch {
		case err == nil || ctx.Err() != nil:
			return nil
		case attempt >= sup.restarts:
			log.Printf("%q crashed %d times, giving up: %+v", name, attempt+1, err)
			sup.mail.alert(name, attempt+1, err)
			return fmt.Errorf("process %q kept crashing: %w", name, err)
		}
		log.Printf("%q crashed (attempt %d/%d), restarting in %v: %+v",
			name, attempt+1, sup.restarts, sup.backoff, err,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sup.backoff):
		}
	}
}

// runOnce starts the process and waits for it to finish, killing it
// when the supervisor shuts down. The process log file is appended to
// across restarts.
func (sup *supervisor) runOnce(ctx context.Context, name string, argv []string) error {
	out, err := os.OpenFile(
		filepath.Join(sup.dir, name+".log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
	)
	if err != nil {
		return fmt.Errorf("could not open log file for %q: %w", name, err)
	}
	defer out.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out

	log.Printf("starting %q...", name)
	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("could not start %q: %w", name, err)
	}

	if sup.doMon {
		stop, err := sup.monitor(name, cmd.Process.Pid)
		if err != nil {
			log.Printf("could not monitor %q: %+v", name, err)
		} else {
			defer stop()
		}
	}

	errch := make(chan error, 1)
	go func() {
		errch <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-errch
		return nil
	case err = <-errch:
		if err != nil {
			return fmt.Errorf("could not run %q: %w", name, err)
		}
	}
	return nil
}

// monitor attaches a pmon sampler to the process and streams its
// resource usage to a side log file.
func (sup *supervisor) monitor(name string, pid int) (func(), error) {
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not attach pmon to %q (pid=%d): %w", name, pid, err)
	}
	f, err := os.OpenFile(
		filepath.Join(sup.dir, name+"-pmon.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
	)
	if err != nil {
		return nil, fmt.Errorf("could not open pmon log file for %q: %w", name, err)
	}
	p.W = f
	p.Freq = sup.freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not monitor %q: %+v", name, err)
		}
	}()

	return func() {
		if err := p.Kill(); err != nil {
			log.Printf("could not stop monitoring %q: %+v", name, err)
		}
		f.Close()
	}, nil
}

// mailer sends crash alerts. A nil mailer drops them with a log line.
type mailer struct {
	usr  string
	pwd  string
	srv  string
	port int
	tgts []string
}

func mailerFromEnv() *mailer {
	m := mailer{
		usr:  os.Getenv("MAIL_USERNAME"),
		pwd:  os.Getenv("MAIL_PASSWORD"),
		srv:  os.Getenv("MAIL_SERVER"),
		tgts: strings.Split(os.Getenv("MAIL_TGTS"), ","),
	}
	m.port, _ = strconv.Atoi(os.Getenv("MAIL_PORT"))
	if m.usr == "" || m.pwd == "" || m.srv == "" || m.port == 0 {
		return nil
	}
	return &m
}

func (m *mailer) alert(name string, crashes int, cause error) {
	if m == nil {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.usr)
	msg.SetHeader("Bcc", m.tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[alpide-boot] DAQ process down: %q", name))
	msg.SetBody("text/plain", fmt.Sprintf(
		"process: %q\ncrashes: %d\nlast error: %+v\nsupervision stopped, manual restart needed.",
		name, crashes, cause,
	))

	dial := mail.NewDialer(m.srv, m.port, m.usr, m.pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

// Command shorthair-echo is a minimal two-sided demo of the shorthair
// transport over real UDP sockets: one side listens, the other connects,
// and each line typed on stdin is sent across the link with adaptive FEC
// and an authenticated envelope, following the teacher's cmd/quic-client
// flag-driven CLI shape (_examples/twogc-quic-test/cmd/quic-client/main.go).
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uuorb/shorthair"
)

func main() {
	fmt.Println("==============================")
	fmt.Println("  shorthair echo demo")
	fmt.Println("==============================")

	listenAddr := flag.String("listen", "", "local UDP address to listen on (this side is the responder)")
	peerAddr := flag.String("peer", "", "remote UDP address to send to (this side is the initiator)")
	keyHex := flag.String("key", "", "64-char hex shared secret (32 bytes); both sides must match")
	minDelay := flag.Duration("min-delay", 10*time.Millisecond, "floor for the one-way delay estimate")
	maxDelay := flag.Duration("max-delay", 500*time.Millisecond, "ceiling for the one-way delay estimate")
	minLoss := flag.Float64("min-loss", 0.001, "floor for the loss estimate")
	targetLoss := flag.Float64("target-loss", 1e-4, "residual loss the redundancy planner targets")
	tick := flag.Duration("tick", 5*time.Millisecond, "Tick cadence")
	flag.Parse()

	if (*listenAddr == "") == (*peerAddr == "") {
		fmt.Println("exactly one of -listen or -peer must be set")
		os.Exit(1)
	}
	key, err := hex.DecodeString(*keyHex)
	if err != nil || len(key) != 32 {
		fmt.Println("-key must be 64 hex characters (32 bytes)")
		os.Exit(1)
	}

	initiator := *peerAddr != ""
	var conn *net.UDPConn
	var remote *net.UDPAddr
	if initiator {
		remote, err = net.ResolveUDPAddr("udp", *peerAddr)
		if err != nil {
			fmt.Printf("resolve peer: %v\n", err)
			os.Exit(1)
		}
		conn, err = net.DialUDP("udp", nil, remote)
	} else {
		var local *net.UDPAddr
		local, err = net.ResolveUDPAddr("udp", *listenAddr)
		if err == nil {
			conn, err = net.ListenUDP("udp", local)
		}
	}
	if err != nil {
		fmt.Printf("socket setup: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	settings := shorthair.Settings{
		Initiator:  initiator,
		Key:        key,
		TargetLoss: *targetLoss,
		MinLoss:    *minLoss,
		MinDelay:   *minDelay,
		MaxDelay:   *maxDelay,
		MaxDataSize: 1200,
		Log:        log,
		Iface: shorthair.Interface{
			OnPacket: func(payload []byte) {
				fmt.Printf("recv: %s\n", string(payload))
			},
			OnOOB: func(payload []byte) {
				fmt.Printf("oob (type 0x%x): %d bytes\n", payload[0], len(payload)-1)
			},
		},
	}

	sendTo := func(b []byte) {
		if initiator {
			conn.Write(b)
		} else if remote != nil {
			conn.WriteToUDP(b, remote)
		}
	}
	settings.Iface.SendData = func(b []byte) { sendTo(b) }

	ep, err := shorthair.New(settings)
	if err != nil {
		fmt.Printf("initialize: %v\n", err)
		os.Exit(1)
	}
	var mu sync.Mutex // serializes every ep call across the goroutines below

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		buf := make([]byte, 2048)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			mu.Lock()
			if !initiator && remote == nil {
				remote = from
			}
			pkt := append([]byte(nil), buf[:n]...)
			if err := ep.Recv(pkt, time.Now()); err != nil {
				log.Warn("recv failed", zap.Error(err))
			}
			mu.Unlock()
		}
	}()

	go func() {
		ticker := time.NewTicker(*tick)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			if err := ep.Tick(time.Now()); err != nil {
				log.Warn("tick failed", zap.Error(err))
			}
			mu.Unlock()
		}
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			if err := ep.Send([]byte(line), time.Now()); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
			mu.Unlock()
		}
	}()

	<-sigs
	mu.Lock()
	ep.Finalize()
	mu.Unlock()
	fmt.Println("shutting down")
}

package main

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const (
	sendTimeout = 10 * time.Second
	// the rpc server drops connections that stay silent longer than 30s
	pingPeriod = (30 * 9 / 10) * time.Second
)

// transacter pushes opaque payload transactions into one node's websocket RPC
// at a fixed per-connection rate.
type transacter struct {
	Target      string
	Rate        int
	Connections int
	PayloadSize int

	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     bool

	sent    metrics.Meter
	latency metrics.Histogram

	logger log.Logger
}

func newTransacter(target string, connections, rate, payloadSize int) *transacter {
	return &transacter{
		Target:      target,
		Rate:        rate,
		Connections: connections,
		PayloadSize: payloadSize,
		conns:       make([]*websocket.Conn, connections),
		connsBroken: make([]bool, connections),
		sent:        metrics.NewMeter(),
		latency:     metrics.NewHistogram(metrics.NewUniformSample(1000)),
		logger:      log.NewNopLogger(),
	}
}

func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start dials t.Connections websocket connections and runs a send and a
// receive goroutine for each.
func (t *transacter) Start() error {
	t.stopped = false

	for i := 0; i < t.Connections; i++ {
		c, _, err := connect(t.Target)
		if err != nil {
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()
	return nil
}

// Stop closes the connections after the in-flight loops drain.
func (t *transacter) Stop() {
	t.stopped = true
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

// receiveLoop drains responses so the server's write buffer never fills.
func (t *transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.logger.Error(fmt.Sprintf("failed to read response on conn %d", connIndex), "err", err)
			}
			return
		}
		if t.stopped || t.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop writes t.Rate transactions per second on one connection.
func (t *transacter) sendLoop(connIndex int) {
	started := false
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Temporary() {
			return nil
		}
		return err
	})

	logger := t.logger.With("addr", c.RemoteAddr())

	pingsTicker := time.NewTicker(pingPeriod)
	txsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		txsTicker.Stop()
		t.endingWg.Done()
	}()

	var txSeq uint64
	for {
		select {
		case <-txsTicker.C:
			startTime := time.Now()
			if !started {
				t.startingWg.Done()
				started = true
			}

			for i := 0; i < t.Rate; i++ {
				txSeq++
				if err := t.writeTx(c, connIndex, txSeq); err != nil {
					t.connsBroken[connIndex] = true
					logger.Error(err.Error())
					return
				}
				t.sent.Mark(1)
			}

			timeToSend := time.Since(startTime)
			t.latency.Update(timeToSend.Microseconds())
			logger.Info(fmt.Sprintf("sent %d transactions", t.Rate), "took", timeToSend)
			if timeToSend < 1*time.Second {
				time.Sleep(time.Second - timeToSend)
			}

		case <-pingsTicker.C:
			// the rpc server closes the connection in the absence of pings
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logger.Error(fmt.Sprintf("failed to write ping message on conn #%d", connIndex), "err", err)
				t.connsBroken[connIndex] = true
			}
		}

		if t.stopped {
			// close frame first so the server can shut the connection down cleanly
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Error(fmt.Sprintf("failed to write close message on conn #%d", connIndex), "err", err)
				t.connsBroken[connIndex] = true
			}
			return
		}
	}
}

func (t *transacter) writeTx(c *websocket.Conn, connIndex int, seq uint64) error {
	tx := generatePayload(connIndex, seq, t.PayloadSize)
	txHex := make([]byte, hex.EncodedLen(len(tx)))
	hex.Encode(txHex, tx)

	paramsJSON, err := json.Marshal(map[string]interface{}{"tx": txHex})
	if err != nil {
		return errors.Wrap(err, "failed to encode params")
	}

	c.SetWriteDeadline(time.Now().Add(sendTimeout))
	err = c.WriteJSON(jsonrpc.RPCRequest{
		JSONRPC: "2.0",
		ID:      jsonrpc.JSONRPCStringID("bench"),
		Method:  "broadcast_tx",
		Params:  json.RawMessage(paramsJSON),
	})
	if err != nil {
		return errors.Wrapf(err, "tx send failed on connection #%d", connIndex)
	}
	return nil
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// generatePayload builds a unique opaque tx: connection index, sequence
// number, then random filler up to size bytes. The interpreter does not care
// what is inside, it only needs distinct hashes.
func generatePayload(connIndex int, seq uint64, size int) []byte {
	if size < 16 {
		size = 16
	}
	tx := make([]byte, size)
	binary.BigEndian.PutUint64(tx[:8], uint64(connIndex))
	binary.BigEndian.PutUint64(tx[8:16], seq)
	rand.Read(tx[16:])
	return tx
}

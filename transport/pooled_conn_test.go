package transport

import (
	"blobpool/codec"
	"blobpool/message"
	"blobpool/pool"
	"blobpool/protocol"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"
)

type addArgs struct{ A, B int }
type addReply struct{ Result int }

// startEchoServer runs a minimal single-shot server: read one request
// frame, reply with A+B, matching seq.
func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header, body, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		var req message.RPCMessage
		cdc := codec.GetCodec(codec.CodecType(header.CodecType))
		cdc.Decode(body, &req)

		var args addArgs
		json.Unmarshal(req.Payload, &args)

		replyPayload, _ := json.Marshal(addReply{Result: args.A + args.B})
		resp := message.RPCMessage{ServiceMethod: req.ServiceMethod, Payload: replyPayload}
		respBody, _ := cdc.Encode(&resp)

		replyHeader := protocol.Header{
			CodecType: header.CodecType,
			MsgType:   protocol.MsgTypeResponse,
			Seq:       header.Seq,
			BodyLen:   uint32(len(respBody)),
		}
		protocol.Encode(conn, &replyHeader, respBody)
	}()

	return ln.Addr().String()
}

func TestPooledConn_SendReceiveRoundTrip(t *testing.T) {
	addr := startEchoServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	portNum, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	cfg := pool.Config{MaxConnectionsPerHost: 1, ReadBufferSizeBytes: 4096, WriteBufferSizeBytes: 4096, ReadTimeoutMs: 2000}
	factory := NewFactory(codec.CodecTypeJSON)
	conn := factory(host, pool.Port{Number: uint16(portNum)}, cfg)

	if err := conn.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Disconnect()

	pc := conn.(*PooledConn)
	if err := pc.Send("Blob.Copy", addArgs{A: 2, B: 3}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var reply addReply
	if err := pc.Receive(&reply); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if reply.Result != 5 {
		t.Fatalf("Result = %d, want 5", reply.Result)
	}

	if conn.RemoteHost() != host {
		t.Fatalf("RemoteHost = %q, want %q", conn.RemoteHost(), host)
	}
}

func TestPooledConn_ReceiveTimesOutWithNoResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(200 * time.Millisecond) // never responds within the deadline
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	portNum, _ := strconv.Atoi(portStr)

	cfg := pool.Config{MaxConnectionsPerHost: 1, ReadBufferSizeBytes: 1024, WriteBufferSizeBytes: 1024, ReadTimeoutMs: 20}
	factory := NewFactory(codec.CodecTypeJSON)
	conn := factory(host, pool.Port{Number: uint16(portNum)}, cfg)
	if err := conn.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Disconnect()

	pc := conn.(*PooledConn)
	if err := pc.Send("Blob.Copy", addArgs{A: 1, B: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}

	var reply addReply
	if err := pc.Receive(&reply); err == nil {
		t.Fatal("expected a read-timeout error, got nil")
	}
}

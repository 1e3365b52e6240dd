package test

import (
	"blobpool/client"
	"blobpool/codec"
	"blobpool/loadbalance"
	"blobpool/middleware"
	"blobpool/registry"
	"blobpool/server"
	"testing"
	"time"
)

// TestFullIntegrationWithEtcd 完整端到端测试
// 链路: Client → Registry(etcd) → LB → ConnPool → Protocol → Codec → Middleware → Server → 反射调用
func TestFullIntegrationWithEtcd(t *testing.T) {
	// 1. 连接 etcd
	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"})
	if err != nil {
		t.Fatalf("failed to connect etcd: %v", err)
	}

	// 2. 启动 Server，挂载中间件
	svr := server.NewServer()
	svr.Use(middleware.LoggingMiddleware())
	err = svr.Register(server.NewBlob())
	if err != nil {
		t.Fatal(err)
	}
	go svr.Serve("tcp", ":19090", "127.0.0.1:19090", reg)
	time.Sleep(100 * time.Millisecond)

	// 3. 创建 Client（用同一个 registry 做服务发现）
	bal := &loadbalance.RoundRobinBalancer{}
	cli := client.NewClient(reg, bal, byte(codec.CodecTypeJSON), 4, 2*time.Second)

	// 4. 测试 Copy
	copyReply := &server.CopyReply{}
	err = cli.Call("Blob.Copy", &server.CopyArgs{BlobID: "b1", Data: []byte("hello world")}, copyReply)
	if err != nil {
		t.Fatalf("Call Copy failed: %v", err)
	}
	if copyReply.SizeBytes != len("hello world") {
		t.Fatalf("Copy: expect %d bytes, got %d", len("hello world"), copyReply.SizeBytes)
	}

	// 5. 测试 Verify
	verifyReply := &server.VerifyReply{}
	err = cli.Call("Blob.Verify", &server.VerifyArgs{BlobID: "b1", ExpectedSizeBytes: len("hello world")}, verifyReply)
	if err != nil {
		t.Fatalf("Call Verify failed: %v", err)
	}
	if !verifyReply.Matches {
		t.Fatalf("Verify: expect a size match, got mismatch (size=%d)", verifyReply.SizeBytes)
	}

	t.Log("Full integration test with etcd passed!")

	// 6. 清理：注销 + 关闭 server
	svr.Shutdown(3 * time.Second)
}

// TestMultiServerWithEtcd 多实例 + 负载均衡 + etcd
func TestMultiServerWithEtcd(t *testing.T) {
	// 1. 连接 etcd
	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"})
	if err != nil {
		t.Fatalf("failed to connect etcd: %v", err)
	}

	// 清理上个测试残留的 etcd 数据
	reg.Deregister("Blob", "127.0.0.1:19090")

	// 2. 启动 2 个 Server
	svr1 := server.NewServer()
	svr1.Register(server.NewBlob())
	go svr1.Serve("tcp", ":19091", "127.0.0.1:19091", reg)

	svr2 := server.NewServer()
	svr2.Register(server.NewBlob())
	go svr2.Serve("tcp", ":19092", "127.0.0.1:19092", reg)

	time.Sleep(100 * time.Millisecond)

	// 3. 创建 Client
	bal := &loadbalance.RoundRobinBalancer{}
	cli := client.NewClient(reg, bal, byte(codec.CodecTypeJSON), 4, 2*time.Second)

	// 4. 发 10 个请求，验证全部正确
	// 每台 server 维护各自的 blob 存储，而 round robin 让相邻两次 cli.Call
	// 落在不同实例上，所以这里只 Copy 并检查返回的字节数，不做 Verify
	// （紧接着的 Verify 会打到另一台没有该 blob 的 server）。
	for i := 1; i <= 10; i++ {
		blobID := "blob-" + string(rune('a'+i))
		data := make([]byte, i*10)

		copyReply := &server.CopyReply{}
		if err := cli.Call("Blob.Copy", &server.CopyArgs{BlobID: blobID, Data: data}, copyReply); err != nil {
			t.Fatalf("request %d copy failed: %v", i, err)
		}
		if copyReply.SizeBytes != len(data) {
			t.Fatalf("request %d: expect %d bytes, got %d", i, len(data), copyReply.SizeBytes)
		}
	}

	t.Log("Multi-server integration test with etcd passed!")

	// 5. 清理
	svr1.Shutdown(3 * time.Second)
	svr2.Shutdown(3 * time.Second)
}

package client

import (
	"blobpool/codec"
	"blobpool/loadbalance"
	"blobpool/middleware"
	"blobpool/registry"
	"blobpool/server"
	"testing"
	"time"
)

// ---- Mock Registry（不依赖 etcd）----

type MockRegistry struct {
	instances map[string][]registry.ServiceInstance
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{instances: make(map[string][]registry.ServiceInstance)}
}

func (m *MockRegistry) Register(serviceName string, inst registry.ServiceInstance, ttl int64) error {
	m.instances[serviceName] = append(m.instances[serviceName], inst)
	return nil
}

func (m *MockRegistry) Deregister(serviceName string, addr string) error {
	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockRegistry) Discover(serviceName string) ([]registry.ServiceInstance, error) {
	return m.instances[serviceName], nil
}

func (m *MockRegistry) Watch(serviceName string) <-chan []registry.ServiceInstance {
	return nil
}

// ---- 测试 ----

func TestClientWithRegistryAndLB(t *testing.T) {
	// 1. 启动 Server
	svr := server.NewServer()
	svr.Use(middleware.LoggingMiddleware())
	err := svr.Register(server.NewBlob())
	if err != nil {
		t.Fatal(err)
	}
	go svr.Serve("tcp", ":18080", "", nil)
	time.Sleep(100 * time.Millisecond)

	// 2. Mock Registry：手动注册服务实例
	reg := NewMockRegistry()
	reg.Register("Blob", registry.ServiceInstance{Addr: "127.0.0.1:18080", Weight: 1}, 10)

	// 3. 创建 Client
	bal := &loadbalance.RoundRobinBalancer{}
	cli := NewClient(reg, bal, byte(codec.CodecTypeJSON), 4, 2*time.Second)

	// 4. 调用 Blob.Copy，再用 Blob.Verify 确认写入的字节数
	copyReply := &server.CopyReply{}
	err = cli.Call("Blob.Copy", &server.CopyArgs{BlobID: "b1", Data: []byte("hello")}, copyReply)
	if err != nil {
		t.Fatal(err)
	}
	if copyReply.SizeBytes != 5 {
		t.Fatalf("expect 5, got %v", copyReply.SizeBytes)
	}

	verifyReply := &server.VerifyReply{}
	err = cli.Call("Blob.Verify", &server.VerifyArgs{BlobID: "b1", ExpectedSizeBytes: 5}, verifyReply)
	if err != nil {
		t.Fatal(err)
	}
	if !verifyReply.Matches {
		t.Fatalf("expect a size match, got mismatch (size=%d)", verifyReply.SizeBytes)
	}

	t.Log("All integration tests passed!")
}

func TestClientMultipleInstances(t *testing.T) {
	// 启动 2 个 Server 实例
	svr1 := server.NewServer()
	svr1.Register(server.NewBlob())
	go svr1.Serve("tcp", ":18081", "", nil)

	svr2 := server.NewServer()
	svr2.Register(server.NewBlob())
	go svr2.Serve("tcp", ":18082", "", nil)

	time.Sleep(100 * time.Millisecond)

	// 注册 2 个实例
	reg := NewMockRegistry()
	reg.Register("Blob", registry.ServiceInstance{Addr: "127.0.0.1:18081", Weight: 1}, 10)
	reg.Register("Blob", registry.ServiceInstance{Addr: "127.0.0.1:18082", Weight: 1}, 10)

	// RoundRobin 负载均衡
	bal := &loadbalance.RoundRobinBalancer{}
	cli := NewClient(reg, bal, byte(codec.CodecTypeJSON), 4, 2*time.Second)

	// 发 10 个请求，RoundRobin 应该交替打到两个 server
	// 每个请求都 Copy 到同一个 blobID "b"（每次覆盖），各自落在哪台
	// server 上无所谓，只验证每次调用本身成功且返回的字节数正确。
	for i := 0; i < 10; i++ {
		data := make([]byte, i+1)
		reply := &server.CopyReply{}
		err := cli.Call("Blob.Copy", &server.CopyArgs{BlobID: "b", Data: data}, reply)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if reply.SizeBytes != i+1 {
			t.Fatalf("request %d: expect %d, got %d", i, i+1, reply.SizeBytes)
		}
	}

	t.Log("Multi-instance load balancing test passed!")
}

// Command blobcheck validates blobs already on a Blob service, one
// "Blob.Verify" RPC per line of stdin ("blobID expectedSizeBytes"),
// reporting every size mismatch or missing blob it finds.
package main

import (
	"blobpool/client"
	"blobpool/codec"
	"blobpool/loadbalance"
	"blobpool/registry"
	"blobpool/server"
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	etcdEndpoints := flag.String("etcd", "127.0.0.1:2379", "comma-separated etcd endpoints")
	serviceName := flag.String("service", "Blob", "registered service name")
	maxConnsPerHost := flag.Int("max-conns", 4, "max pooled connections per host")
	checkoutTimeout := flag.Duration("checkout-timeout", 5*time.Second, "pool checkout timeout")
	flag.Parse()

	reg, err := registry.NewEtcdRegistry(strings.Split(*etcdEndpoints, ","))
	if err != nil {
		log.Fatalf("blobcheck: connect etcd: %v", err)
	}

	cli := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), *maxConnsPerHost, *checkoutTimeout)
	defer cli.Shutdown()

	scanner := bufio.NewScanner(os.Stdin)
	var checked, mismatched int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.Printf("blobcheck: skipping malformed line %q", line)
			continue
		}
		blobID := fields[0]
		expected, err := strconv.Atoi(fields[1])
		if err != nil {
			log.Printf("blobcheck: skipping %q: %v", line, err)
			continue
		}

		args := &server.VerifyArgs{BlobID: blobID, ExpectedSizeBytes: expected}
		reply := &server.VerifyReply{}
		if err := cli.Call(fmt.Sprintf("%s.Verify", *serviceName), args, reply); err != nil {
			log.Printf("blobcheck: verify %s failed: %v", blobID, err)
			mismatched++
			continue
		}
		checked++
		if !reply.Matches {
			log.Printf("blobcheck: %s mismatch: expected %d bytes, got %d", blobID, expected, reply.SizeBytes)
			mismatched++
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("blobcheck: reading stdin: %v", err)
	}

	log.Printf("blobcheck: checked=%d mismatched=%d", checked, mismatched)
}

// Command blobmigrate copies blobs to a Blob service, one "Blob.Copy"
// RPC per line of stdin, throttled so a migration run never saturates
// the target hosts. Each line is "blobID sizeBytes"; sizeBytes fills a
// synthetic payload since this tool moves placement, not content.
package main

import (
	"blobpool/client"
	"blobpool/codec"
	"blobpool/loadbalance"
	"blobpool/registry"
	"blobpool/server"
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	etcdEndpoints := flag.String("etcd", "127.0.0.1:2379", "comma-separated etcd endpoints")
	serviceName := flag.String("service", "Blob", "registered service name")
	balancerName := flag.String("balancer", "roundrobin", "roundrobin, weighted, or consistenthash")
	ratePerSec := flag.Float64("rate", 50, "max Blob.Copy calls per second")
	burst := flag.Int("burst", 10, "rate limiter burst size")
	maxConnsPerHost := flag.Int("max-conns", 4, "max pooled connections per host")
	checkoutTimeout := flag.Duration("checkout-timeout", 5*time.Second, "pool checkout timeout")
	flag.Parse()

	reg, err := registry.NewEtcdRegistry(strings.Split(*etcdEndpoints, ","))
	if err != nil {
		log.Fatalf("blobmigrate: connect etcd: %v", err)
	}

	copyMethod := fmt.Sprintf("%s.Copy", *serviceName)

	var doCopy func(blobID string, args *server.CopyArgs, reply *server.CopyReply) error

	switch *balancerName {
	case "roundrobin", "weighted":
		var bal loadbalance.Balancer = &loadbalance.RoundRobinBalancer{}
		if *balancerName == "weighted" {
			bal = &loadbalance.WeightedRandomBalancer{}
		}
		cli := client.NewClient(reg, bal, byte(codec.CodecTypeJSON), *maxConnsPerHost, *checkoutTimeout)
		defer cli.Shutdown()
		doCopy = func(_ string, args *server.CopyArgs, reply *server.CopyReply) error {
			return cli.Call(copyMethod, args, reply)
		}

	case "consistenthash":
		// Routes every blobID to the same destination host on every
		// run, so re-migrating after a partial failure only touches
		// the blobs that didn't land.
		instances, err := reg.Discover(*serviceName)
		if err != nil {
			log.Fatalf("blobmigrate: discover %s: %v", *serviceName, err)
		}
		if len(instances) == 0 {
			log.Fatalf("blobmigrate: no instances registered for %s", *serviceName)
		}
		ring := loadbalance.NewConsistentHashBalancer()
		for i := range instances {
			ring.Add(&instances[i])
		}
		cli := client.NewClient(reg, &loadbalance.RoundRobinBalancer{}, byte(codec.CodecTypeJSON), *maxConnsPerHost, *checkoutTimeout)
		defer cli.Shutdown()
		doCopy = func(blobID string, args *server.CopyArgs, reply *server.CopyReply) error {
			instance, err := ring.Pick(blobID)
			if err != nil {
				return err
			}
			return cli.CallTo(instance.Addr, copyMethod, args, reply)
		}

	default:
		log.Fatalf("blobmigrate: unknown -balancer %q", *balancerName)
	}

	limiter := rate.NewLimiter(rate.Limit(*ratePerSec), *burst)
	ctx := context.Background()

	scanner := bufio.NewScanner(os.Stdin)
	var migrated, failed int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			log.Printf("blobmigrate: skipping malformed line %q", line)
			continue
		}
		blobID := fields[0]
		size, err := strconv.Atoi(fields[1])
		if err != nil {
			log.Printf("blobmigrate: skipping %q: %v", line, err)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			log.Fatalf("blobmigrate: rate limiter: %v", err)
		}

		args := &server.CopyArgs{BlobID: blobID, Data: make([]byte, size)}
		reply := &server.CopyReply{}
		if err := doCopy(blobID, args, reply); err != nil {
			log.Printf("blobmigrate: copy %s failed: %v", blobID, err)
			failed++
			continue
		}
		migrated++
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("blobmigrate: reading stdin: %v", err)
	}

	log.Printf("blobmigrate: migrated=%d failed=%d balancer=%s", migrated, failed, *balancerName)
}

package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ServiceRegistration is what gets written to Redis when a remote agent
// registers itself for discovery, mirrored from the teacher's
// core.ServiceRegistration shape.
type ServiceRegistration struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	BaseURL      string                 `json:"base_url"`
	Capabilities []string               `json:"capabilities"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// RedisDiscovery backs agent discovery with Redis, for deployments where
// remote agents register themselves rather than being statically configured.
// Grounded on the teacher's core/redis_discovery.go.
type RedisDiscovery struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisDiscovery connects to redisURL under the "agentorch" namespace.
func NewRedisDiscovery(redisURL string) (*RedisDiscovery, error) {
	return NewRedisDiscoveryWithNamespace(redisURL, "agentorch")
}

// NewRedisDiscoveryWithNamespace connects to redisURL under a custom
// namespace, probing the connection with a bounded ping.
func NewRedisDiscoveryWithNamespace(redisURL, namespace string) (*RedisDiscovery, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, NewFrameworkError("RedisDiscovery.connect", KindConfiguration, "", "invalid redis URL", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, NewFrameworkError("RedisDiscovery.connect", KindTransport, "", "failed to connect to redis", err)
	}

	return &RedisDiscovery{client: client, namespace: namespace, ttl: 30 * time.Second}, nil
}

func (d *RedisDiscovery) serviceKey(id string) string {
	return fmt.Sprintf("%s:services:%s", d.namespace, id)
}

func (d *RedisDiscovery) nameKey(name string) string {
	return fmt.Sprintf("%s:names:%s", d.namespace, name)
}

func (d *RedisDiscovery) capabilityKey(capability string) string {
	return fmt.Sprintf("%s:capabilities:%s", d.namespace, capability)
}

// Register stores a service registration with a TTL and indexes it by name
// and capability, renewed on every call.
func (d *RedisDiscovery) Register(ctx context.Context, reg *ServiceRegistration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}
	if err := d.client.Set(ctx, d.serviceKey(reg.ID), data, d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	for _, cap := range reg.Capabilities {
		key := d.capabilityKey(cap)
		d.client.SAdd(ctx, key, reg.ID)
		d.client.Expire(ctx, key, d.ttl*2)
	}
	d.client.SAdd(ctx, d.nameKey(reg.Name), reg.ID)
	d.client.Expire(ctx, d.nameKey(reg.Name), d.ttl*2)
	return nil
}

// Unregister removes a service and cleans up its capability/name indexes.
func (d *RedisDiscovery) Unregister(ctx context.Context, serviceID string) error {
	data, err := d.client.Get(ctx, d.serviceKey(serviceID)).Result()
	if err == nil {
		var reg ServiceRegistration
		if json.Unmarshal([]byte(data), &reg) == nil {
			for _, cap := range reg.Capabilities {
				d.client.SRem(ctx, d.capabilityKey(cap), serviceID)
			}
			d.client.SRem(ctx, d.nameKey(reg.Name), serviceID)
		}
	}
	return d.client.Del(ctx, d.serviceKey(serviceID)).Err()
}

// FindService returns all live registrations under a given name.
func (d *RedisDiscovery) FindService(ctx context.Context, name string) ([]*ServiceRegistration, error) {
	ids, err := d.client.SMembers(ctx, d.nameKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}
	var out []*ServiceRegistration
	for _, id := range ids {
		data, err := d.client.Get(ctx, d.serviceKey(id)).Result()
		if err != nil {
			continue // expired
		}
		var reg ServiceRegistration
		if json.Unmarshal([]byte(data), &reg) != nil {
			continue
		}
		out = append(out, &reg)
	}
	return out, nil
}

// FindByCapability returns all live registrations declaring a capability.
func (d *RedisDiscovery) FindByCapability(ctx context.Context, capability string) ([]*ServiceRegistration, error) {
	ids, err := d.client.SMembers(ctx, d.capabilityKey(capability)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find services by capability: %w", err)
	}
	var out []*ServiceRegistration
	for _, id := range ids {
		data, err := d.client.Get(ctx, d.serviceKey(id)).Result()
		if err != nil {
			continue
		}
		var reg ServiceRegistration
		if json.Unmarshal([]byte(data), &reg) != nil {
			continue
		}
		out = append(out, &reg)
	}
	return out, nil
}

// Close releases the underlying Redis connection.
func (d *RedisDiscovery) Close() error {
	return d.client.Close()
}

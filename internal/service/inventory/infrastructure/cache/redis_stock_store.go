// Package cache 提供基于 Redis 的库存存储，比较并交换由 Lua 脚本在服务端原子完成。
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"marketplace/internal/pkg/redis"
	"marketplace/internal/service/inventory/domain"
)

const (
	applyDeltaScriptName = "inventory_apply_delta"
	setLevelScriptName   = "inventory_set_level"
)

// 返回值：{code, stocked, reserved, version}；code 0 成功，1 版本冲突，2 库存不足，3 对不存在的记录应用零变更
const applyDeltaScript = `
local delta = tonumber(ARGV[1])
local expected = tonumber(ARGV[2])
if redis.call('exists', KEYS[1]) == 0 then
    if delta < 0 then
        return {2, 0, 0, 0}
    end
    if delta == 0 then
        return {3, 0, 0, 0}
    end
    if expected ~= 0 then
        return {1, 0, 0, 0}
    end
    redis.call('hset', KEYS[1], 'stocked', delta, 'reserved', 0, 'version', 1, 'updated_at', ARGV[3])
    return {0, delta, 0, 1}
end
local stocked = tonumber(redis.call('hget', KEYS[1], 'stocked') or '0')
local reserved = tonumber(redis.call('hget', KEYS[1], 'reserved') or '0')
local version = tonumber(redis.call('hget', KEYS[1], 'version') or '0')
if stocked ~= expected then
    return {1, stocked, reserved, version}
end
local updated = stocked + delta
if updated < 0 or updated < reserved then
    return {2, stocked, reserved, version}
end
version = version + 1
redis.call('hset', KEYS[1], 'stocked', updated, 'version', version, 'updated_at', ARGV[3])
return {0, updated, reserved, version}
`

const setLevelScript = `
local version = redis.call('hincrby', KEYS[1], 'version', 1)
redis.call('hset', KEYS[1], 'stocked', ARGV[1], 'reserved', ARGV[2], 'updated_at', ARGV[3])
return version
`

// RedisStockStore 是 StockLevelStore 的 Redis 实现。每个 (item, location) 是一个 hash。
type RedisStockStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStockStore 在创建时加载所有需要的 Lua 脚本。
func NewRedisStockStore(client *redis.Client) (*RedisStockStore, error) {
	if err := client.LoadScriptFromContent(applyDeltaScriptName, applyDeltaScript); err != nil {
		return nil, fmt.Errorf("failed to load apply delta script: %w", err)
	}
	if err := client.LoadScriptFromContent(setLevelScriptName, setLevelScript); err != nil {
		return nil, fmt.Errorf("failed to load set level script: %w", err)
	}
	return &RedisStockStore{client: client, now: time.Now}, nil
}

func stockKey(itemID, locationID string) string {
	return fmt.Sprintf("inventory:stock:{%s}:%s", itemID, locationID)
}

func (s *RedisStockStore) GetLevels(ctx context.Context, itemID string, locationIDs []string) ([]domain.StockLevel, error) {
	pipe := s.client.GetClient().Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(locationIDs))
	for i, loc := range locationIDs {
		cmds[i] = pipe.HGetAll(ctx, stockKey(itemID, loc))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrapf(err, "get stock levels of %s", itemID)
	}

	levels := make([]domain.StockLevel, 0, len(locationIDs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		level, err := parseLevel(itemID, locationIDs[i], fields)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// ListByLocations 用 SCAN 按仓位匹配键，集群模式下逐个主节点扫描。
func (s *RedisStockStore) ListByLocations(ctx context.Context, locationIDs []string) ([]domain.StockLevel, error) {
	var keys []string
	var mu sync.Mutex
	scan := func(ctx context.Context, c goredis.Cmdable) error {
		for _, loc := range locationIDs {
			iter := c.Scan(ctx, 0, "inventory:stock:{*}:"+loc, 200).Iterator()
			for iter.Next(ctx) {
				mu.Lock()
				keys = append(keys, iter.Val())
				mu.Unlock()
			}
			if err := iter.Err(); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if cluster, ok := s.client.GetClient().(*goredis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return scan(ctx, node)
		})
	} else {
		err = scan(ctx, s.client.GetClient())
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan stock keys")
	}

	levels := make([]domain.StockLevel, 0, len(keys))
	for _, key := range keys {
		itemID, locationID, ok := splitStockKey(key)
		if !ok {
			continue
		}
		fields, err := s.client.GetClient().HGetAll(ctx, key).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", key)
		}
		if len(fields) == 0 {
			continue
		}
		level, err := parseLevel(itemID, locationID, fields)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func splitStockKey(key string) (itemID, locationID string, ok bool) {
	rest, found := strings.CutPrefix(key, "inventory:stock:{")
	if !found {
		return "", "", false
	}
	end := strings.LastIndex(rest, "}:")
	if end < 0 {
		return "", "", false
	}
	return rest[:end], rest[end+2:], true
}

func (s *RedisStockStore) ApplyDelta(ctx context.Context, itemID, locationID string, delta, expectedStocked int64) (domain.StockLevel, error) {
	now := s.now().UTC()
	res, err := s.client.RunScript(ctx, applyDeltaScriptName,
		[]string{stockKey(itemID, locationID)},
		delta, expectedStocked, now.UnixMilli())
	if err != nil {
		return domain.StockLevel{}, err
	}

	values, ok := res.([]any)
	if !ok || len(values) != 4 {
		return domain.StockLevel{}, errors.Errorf("unexpected result from apply delta script: %v", res)
	}
	nums := make([]int64, 4)
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return domain.StockLevel{}, errors.Errorf("unexpected result type from apply delta script: %T", v)
		}
		nums[i] = n
	}

	switch nums[0] {
	case 0:
		return domain.StockLevel{
			InventoryItemID:  itemID,
			LocationID:       locationID,
			StockedQuantity:  nums[1],
			ReservedQuantity: nums[2],
			Version:          nums[3],
			UpdatedAt:        now,
		}, nil
	case 1:
		return domain.StockLevel{}, fmt.Errorf("%w: item %s at location %s has stocked %d, expected %d",
			domain.ErrConcurrencyConflict, itemID, locationID, nums[1], expectedStocked)
	case 2:
		return domain.StockLevel{}, fmt.Errorf("%w: item %s at location %s has stocked %d (reserved %d), delta %d",
			domain.ErrInsufficientStock, itemID, locationID, nums[1], nums[2], delta)
	case 3:
		return domain.StockLevel{}, fmt.Errorf("%w: item %s at location %s", domain.ErrZeroDelta, itemID, locationID)
	default:
		return domain.StockLevel{}, errors.Errorf("unknown result code from apply delta script: %d", nums[0])
	}
}

// SetLevel (测试和管理用) 直接写入库存，版本号加一。
func (s *RedisStockStore) SetLevel(ctx context.Context, level domain.StockLevel) (domain.StockLevel, error) {
	now := s.now().UTC()
	res, err := s.client.RunScript(ctx, setLevelScriptName,
		[]string{stockKey(level.InventoryItemID, level.LocationID)},
		level.StockedQuantity, level.ReservedQuantity, now.UnixMilli())
	if err != nil {
		return domain.StockLevel{}, err
	}
	version, ok := res.(int64)
	if !ok {
		return domain.StockLevel{}, errors.Errorf("unexpected result type from set level script: %T", res)
	}
	level.Version = version
	level.UpdatedAt = now
	return level, nil
}

func parseLevel(itemID, locationID string, fields map[string]string) (domain.StockLevel, error) {
	level := domain.StockLevel{InventoryItemID: itemID, LocationID: locationID}
	targets := map[string]*int64{
		"stocked":  &level.StockedQuantity,
		"reserved": &level.ReservedQuantity,
		"version":  &level.Version,
	}
	for name, dst := range targets {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.StockLevel{}, errors.Wrapf(err, "parse %s of %s", name, stockKey(itemID, locationID))
		}
		*dst = n
	}
	if raw, ok := fields["updated_at"]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			level.UpdatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return level, nil
}

package redis

import "github.com/redis/go-redis/v9"

// Every conditional write runs as a single script so the check and the
// mutation are one atomic step on the server.

// claimScript: KEYS[1]=node hash, ARGV[1]=now (unix seconds).
// Returns -1 when the node does not exist, 0 when it is not eligible, 1 on success.
var claimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local available = tonumber(redis.call('HGET', KEYS[1], 'available') or '0')
local load = tonumber(redis.call('HGET', KEYS[1], 'current_load') or '0')
local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity') or '0')
local downed = tonumber(redis.call('HGET', KEYS[1], 'downed') or '0')
local backoff = tonumber(redis.call('HGET', KEYS[1], 'backoff') or '0')
if available <= 0 or load >= capacity or downed ~= 0 or backoff > tonumber(ARGV[1]) then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'available', -1)
redis.call('HINCRBY', KEYS[1], 'current_load', 1)
return 1
`)

// registerNodeScript: KEYS[1]=node hash, KEYS[2]=service node set,
// ARGV = available, capacity, downed, backoff, address, current_load.
var registerNodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'current_load', ARGV[6])
  redis.call('SADD', KEYS[2], ARGV[5])
end
redis.call('HSET', KEYS[1], 'available', ARGV[1], 'capacity', ARGV[2], 'downed', ARGV[3], 'backoff', ARGV[4])
return 1
`)

// createAssignmentScript: KEYS[1]=user hash, KEYS[2]=uid counter, KEYS[3]=service user set,
// ARGV = node, tos_signed, email. Returns -1 on duplicate, the new uid otherwise.
var createAssignmentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return -1
end
local uid = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'uid', uid, 'node', ARGV[1], 'tos_signed', ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
return uid
`)

// setTosOneScript: KEYS[1]=user hash, ARGV[1]=tos_signed.
var setTosOneScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'tos_signed', ARGV[1])
return 1
`)

// setTosAllScript: KEYS[1]=service user set, ARGV[1]=user key prefix, ARGV[2]=tos_signed.
// The user hashes it writes are built from ARGV[1] and are not cluster slot safe.
var setTosAllScript = redis.NewScript(`
local emails = redis.call('SMEMBERS', KEYS[1])
for _, email in ipairs(emails) do
  redis.call('HSET', ARGV[1] .. email, 'tos_signed', ARGV[2])
end
return #emails
`)

// updateMetadataScript: KEYS[1]=metadata hash, ARGV = name, value.
var updateMetadataScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

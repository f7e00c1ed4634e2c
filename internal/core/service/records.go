package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/google/uuid"

	"github.com/weisyn/zkcallback/internal/core/interaction"
	"github.com/weisyn/zkcallback/internal/core/object"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
)

// recordPrefix 交互日志键前缀
const recordPrefix = "svc/interaction/"

// RecordKind 交互日志记录类型
type RecordKind string

const (
	// RecordInteraction 普通交互
	RecordInteraction RecordKind = "interaction"
	// RecordScan 单批扫描
	RecordScan RecordKind = "scan"
	// RecordFoldedScan 折叠扫描
	RecordFoldedScan RecordKind = "folded_scan"
)

// InteractionRecord 服务批准的一次提交
//
// Tickets 保存票据及其重随机化标量，日后调用票据时使用。
// VK 是验证所用密钥的指纹。
type InteractionRecord struct {
	ID        string                   `json:"id"`
	Kind      RecordKind               `json:"kind"`
	NewObject object.Com               `json:"new_object"`
	OldNul    object.Nul               `json:"old_nul"`
	Args      []fr.Element             `json:"args,omitempty"`
	Tickets   []interaction.TicketRand `json:"tickets,omitempty"`
	VK        string                   `json:"vk,omitempty"`
	Epoch     uint64                   `json:"epoch"`
	StoredAt  time.Time                `json:"stored_at"`
}

// InteractionApprovedEvent 交互批准事件负载
type InteractionApprovedEvent struct {
	ID        string
	Kind      RecordKind
	NewObject object.Com
	Tickets   int
}

func (s *Service) newRecord(kind RecordKind, com object.Com, nul object.Nul, args []fr.Element, tickets []interaction.TicketRand, vk groth16.VerifyingKey) *InteractionRecord {
	return &InteractionRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		NewObject: com,
		OldNul:    nul,
		Args:      args,
		Tickets:   tickets,
		VK:        s.fingerprint(vk),
		Epoch:     s.clock.Epoch(),
		StoredAt:  s.clock.Now(),
	}
}

// fingerprint 验证密钥指纹的十六进制形式；无法计算时为空
func (s *Service) fingerprint(vk groth16.VerifyingKey) string {
	if vk == nil {
		return ""
	}
	fp, err := zkproof.VKFingerprint(vk)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnf("计算验证密钥指纹失败: %v", err)
		}
		return ""
	}
	return hex.EncodeToString(fp[:])
}

// storeRecord 写入交互日志；未配置存储时不做任何事
func (s *Service) storeRecord(ctx context.Context, rec *InteractionRecord) error {
	if s.store == nil {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化交互记录失败: %w", err)
	}
	if err := s.store.Set(ctx, []byte(recordPrefix+rec.ID), b); err != nil {
		return fmt.Errorf("写入交互日志失败: %w", err)
	}
	return nil
}

// Record 按ID读取交互记录
func (s *Service) Record(ctx context.Context, id string) (*InteractionRecord, error) {
	if s.store == nil {
		return nil, ErrNoRecordStore
	}
	b, err := s.store.Get(ctx, []byte(recordPrefix+id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("交互记录不存在: %s", id)
	}
	var rec InteractionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("解析交互记录失败: %w", err)
	}
	return &rec, nil
}

// Records 全部交互记录，按存储时间排序
func (s *Service) Records(ctx context.Context) ([]InteractionRecord, error) {
	if s.store == nil {
		return nil, ErrNoRecordStore
	}
	kv, err := s.store.PrefixScan(ctx, []byte(recordPrefix))
	if err != nil {
		return nil, err
	}
	out := make([]InteractionRecord, 0, len(kv))
	for k, b := range kv {
		var rec InteractionRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("解析交互记录 %s 失败: %w", k, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].StoredAt.Before(out[j].StoredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

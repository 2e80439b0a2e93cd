package stream

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoCodec implements Codec using google.golang.org/protobuf's
// well-known structpb.Struct as a generic envelope, since no Yellowstone
// .proto-generated SubscribeUpdate/SubscribeRequest types are vendored in
// this module. Decode reads signature, slot, block time, accounts, logs,
// program id and ping id, and an account's owner, pubkey, lamports and
// slot, from the struct's dynamic fields; instruction data and account
// data are not decoded, so TransactionUpdate.InstructionData and
// AccountUpdate.Data stay empty. An upstream SubscribeUpdate client
// would swap this for the generated message types without changing
// Manager or Subscriber.
type ProtoCodec struct{}

func (ProtoCodec) EncodeSubscribe(programID, commitment string) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"type":            "subscribe",
		"account_include": []any{programID},
		"vote":            false,
		"failed":          false,
		"commitment":      commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("stream: build subscribe request: %w", err)
	}
	return proto.Marshal(s)
}

func (ProtoCodec) EncodePong(id int64) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"type": "pong",
		"id":   float64(id),
	})
	if err != nil {
		return nil, fmt.Errorf("stream: build pong: %w", err)
	}
	return proto.Marshal(s)
}

func (ProtoCodec) Decode(data []byte) (Update, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Update{}, fmt.Errorf("stream: decode frame: %w", err)
	}
	fields := s.GetFields()

	switch fields["type"].GetStringValue() {
	case "ping":
		return Update{Kind: UpdateKindPing, PingID: int64(fields["id"].GetNumberValue())}, nil
	case "account":
		return Update{
			Kind: UpdateKindAccount,
			Account: &AccountUpdate{
				Owner:    fields["owner"].GetStringValue(),
				Pubkey:   fields["pubkey"].GetStringValue(),
				Lamports: uint64(fields["lamports"].GetNumberValue()),
				Slot:     uint64(fields["slot"].GetNumberValue()),
			},
		}, nil
	case "transaction":
		return Update{
			Kind:        UpdateKindTransaction,
			Transaction: decodeTransaction(fields),
		}, nil
	default:
		return Update{}, fmt.Errorf("stream: unknown frame type %q", fields["type"].GetStringValue())
	}
}

func decodeTransaction(fields map[string]*structpb.Value) *TransactionUpdate {
	logsVal := fields["logs"].GetListValue()
	logs := make([]string, 0)
	if logsVal != nil {
		for _, v := range logsVal.GetValues() {
			logs = append(logs, v.GetStringValue())
		}
	}

	accountsVal := fields["accounts"].GetListValue()
	accounts := make([]string, 0)
	if accountsVal != nil {
		for _, v := range accountsVal.GetValues() {
			accounts = append(accounts, v.GetStringValue())
		}
	}

	var blockTime time.Time
	if bt := fields["block_time"].GetNumberValue(); bt > 0 {
		blockTime = time.Unix(int64(bt), 0)
	}

	return &TransactionUpdate{
		Signature: fields["signature"].GetStringValue(),
		Slot:      uint64(fields["slot"].GetNumberValue()),
		BlockTime: blockTime,
		Accounts:  accounts,
		Logs:      logs,
		ProgramID: fields["program_id"].GetStringValue(),
	}
}

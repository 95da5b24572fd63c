package examples

import (
	"bytes"
	"context"
	"time"

	"github.com/sila-protocol/sila-go/pkg/execution"
	"github.com/sila-protocol/sila-go/pkg/fqi"
	"github.com/sila-protocol/sila-go/pkg/interaction"
	"github.com/sila-protocol/sila-go/pkg/model"
)

// BinaryTransferTestID identifies the BinaryTransferTest feature.
var BinaryTransferTestID = fqi.MustParse("org.silastandard/test/BinaryTransferTest/v1")

// Values served by the BinaryTransferTest properties.
var (
	BinaryValueDirectly = []byte("SiLA2_Test_String_Value")
	BinaryValueDownload = bytes.Repeat(
		[]byte("A_slightly_longer_SiLA2_Test_String_Value_used_to_demonstrate_the_binary_download"),
		100_000,
	)
)

// BinaryTransferTest echoes binaries of any size.
type BinaryTransferTest struct {
	// interval separates the intermediate responses of EchoBinariesObservably.
	interval time.Duration
}

// NewBinaryTransferTest creates the feature.
func NewBinaryTransferTest() *BinaryTransferTest {
	return &BinaryTransferTest{interval: time.Second}
}

// Register adds the feature and its handlers to b.
func (t *BinaryTransferTest) Register(b *model.Builder) {
	b.AddFeature(mustDefinition("BinaryTransferTest"))
	b.HandleCommand(BinaryTransferTestID.Command("EchoBinaryValue"), t.echoBinaryValue)
	b.HandleCommand(BinaryTransferTestID.Command("EchoBinariesObservably"), t.echoBinariesObservably)
	b.HandleCommand(BinaryTransferTestID.Command("EchoBinaryAndMetadataString"), t.echoBinaryAndMetadataString)
	b.HandleProperty(BinaryTransferTestID.Property("BinaryValueDirectly"), func(ctx context.Context) (any, error) {
		return BinaryValueDirectly, nil
	})
	b.HandleProperty(BinaryTransferTestID.Property("BinaryValueDownload"), func(ctx context.Context) (any, error) {
		return BinaryValueDownload, nil
	})
}

func (t *BinaryTransferTest) echoBinaryValue(ctx context.Context, params map[string]any) (map[string]any, error) {
	return map[string]any{"ReceivedValue": params["BinaryValue"].([]byte)}, nil
}

func (t *BinaryTransferTest) echoBinariesObservably(ctx context.Context, params map[string]any) (map[string]any, error) {
	inst, _ := execution.FromContext(ctx)
	list := params["Binaries"].([]any)

	var joint bytes.Buffer
	for i, item := range list {
		data := item.([]byte)
		joint.Write(data)
		if inst != nil {
			if err := inst.SendIntermediate(map[string]any{"Binary": data}); err != nil {
				return nil, err
			}
			_ = inst.SetProgress(float64(i+1) / float64(len(list)))
		}
		if i < len(list)-1 {
			if err := sleep(ctx, t.interval); err != nil {
				return nil, err
			}
		}
	}
	return map[string]any{"JointBinary": joint.Bytes()}, nil
}

func (t *BinaryTransferTest) echoBinaryAndMetadataString(ctx context.Context, params map[string]any) (map[string]any, error) {
	v, _ := interaction.MetadataFromContext(ctx).Get(BinaryTransferTestID.Metadata("String"))
	s, _ := v.(string)
	if s == "" {
		return nil, execution.NewDefinedError(BinaryTransferTestID.DefinedExecutionError("InvalidMetadataValue"),
			"the String metadata must not be empty")
	}
	return map[string]any{
		"Binary":         params["Binary"].([]byte),
		"StringMetadata": s,
	}, nil
}

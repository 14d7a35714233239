package dynamo

import (
	"fmt"

	"awscqrs/internal/changefeed"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// toSDK converts a change-feed cell into the SDK's attribute union.
func toSDK(v changefeed.AttributeValue) (types.AttributeValue, error) {
	switch {
	case v.S != nil:
		return &types.AttributeValueMemberS{Value: *v.S}, nil
	case v.N != nil:
		return &types.AttributeValueMemberN{Value: *v.N}, nil
	case v.BOOL != nil:
		return &types.AttributeValueMemberBOOL{Value: *v.BOOL}, nil
	case v.NULL != nil:
		return &types.AttributeValueMemberNULL{Value: *v.NULL}, nil
	case v.B != nil:
		return &types.AttributeValueMemberB{Value: v.B}, nil
	case v.SS != nil:
		return &types.AttributeValueMemberSS{Value: v.SS}, nil
	case v.NS != nil:
		return &types.AttributeValueMemberNS{Value: v.NS}, nil
	case v.BS != nil:
		return &types.AttributeValueMemberBS{Value: v.BS}, nil
	case v.L != nil:
		items := make([]types.AttributeValue, 0, len(v.L))
		for i, item := range v.L {
			sdk, err := toSDK(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, sdk)
		}
		return &types.AttributeValueMemberL{Value: items}, nil
	case v.M != nil:
		m, err := imageToSDK(v.M)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	}
	return nil, fmt.Errorf("dynamo: empty attribute value")
}

func imageToSDK(img changefeed.Image) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(img))
	for k, v := range img {
		sdk, err := toSDK(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = sdk
	}
	return out, nil
}

// fromSDK converts an SDK attribute back into the change-feed form.
func fromSDK(v types.AttributeValue) changefeed.AttributeValue {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return changefeed.String(t.Value)
	case *types.AttributeValueMemberN:
		return changefeed.Number(t.Value)
	case *types.AttributeValueMemberBOOL:
		return changefeed.Bool(t.Value)
	case *types.AttributeValueMemberNULL:
		return changefeed.Null()
	case *types.AttributeValueMemberB:
		return changefeed.AttributeValue{B: t.Value}
	case *types.AttributeValueMemberSS:
		return changefeed.StringSet(t.Value...)
	case *types.AttributeValueMemberNS:
		return changefeed.NumberSet(t.Value...)
	case *types.AttributeValueMemberBS:
		return changefeed.BinarySet(t.Value...)
	case *types.AttributeValueMemberL:
		items := make([]changefeed.AttributeValue, 0, len(t.Value))
		for _, item := range t.Value {
			items = append(items, fromSDK(item))
		}
		return changefeed.List(items...)
	case *types.AttributeValueMemberM:
		return changefeed.Map(imageFromSDK(t.Value))
	}
	return changefeed.AttributeValue{}
}

func imageFromSDK(item map[string]types.AttributeValue) changefeed.Image {
	img := make(changefeed.Image, len(item))
	for k, v := range item {
		img[k] = fromSDK(v)
	}
	return img
}

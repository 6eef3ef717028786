package awsd

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

const (
	tagKeyName       = "Name"
	tagKeyProject    = "Project"
	tagKeyManaged    = "netbench:managed"
	tagKeyInstanceID = "netbench:instance-id"
	tagKeyRunID      = "netbench:run-id"

	tagDefaultProject = "netbench"
)

// tagSpecificationWithDefaults returns a tag specification for rt carrying
// withTags followed by the tags every resource created by this tool gets.
func tagSpecificationWithDefaults(rt types.ResourceType, withTags ...types.Tag) []types.TagSpecification {
	return []types.TagSpecification{
		{
			ResourceType: rt,
			Tags:         append(withTags, tagsDefault()...),
		},
	}
}

func tagsDefault() []types.Tag {
	return []types.Tag{
		{
			Key:   aws.String(tagKeyProject),
			Value: aws.String(tagDefaultProject),
		},
		{
			Key:   aws.String(tagKeyManaged),
			Value: aws.String("true"),
		},
	}
}

func nameTag(name string) types.Tag {
	return types.Tag{Key: aws.String(tagKeyName), Value: aws.String(name)}
}

func tag(key, value string) types.Tag {
	return types.Tag{Key: aws.String(key), Value: aws.String(value)}
}

// tagValue returns the value of key in tags, or "".
func tagValue(tags []types.Tag, key string) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return aws.ToString(t.Value)
		}
	}
	return ""
}

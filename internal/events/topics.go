package events

// Topic constants for domain events emitted by the promotion engine.
const (
	TopicPromotionCreated  = "promotion.created"
	TopicPromotionUpdated  = "promotion.updated"
	TopicPromotionDeleted  = "promotion.deleted"
	TopicPromotionToggled  = "promotion.toggled"
	TopicPromotionRedeemed = "promotion.redeemed"
	TopicCheckoutStarted   = "checkout.session_created"
)

// PromotionTopics returns the topics that change what shoppers are offered.
func PromotionTopics() []string {
	return []string{
		TopicPromotionCreated,
		TopicPromotionUpdated,
		TopicPromotionDeleted,
		TopicPromotionToggled,
		TopicPromotionRedeemed,
	}
}
